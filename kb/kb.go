package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/signalsfoundry/wallstream/model"
)

// ErrBodyNotFound is returned when a body name is not registered.
var ErrBodyNotFound = errors.New("body not found")

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventBodyAdded EventType = iota
	EventBodyMoved
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type EventType
	Body model.Body
}

// KnowledgeBase is an in-memory, thread-safe registry of celestial bodies.
type KnowledgeBase struct {
	mu sync.RWMutex

	bodies map[string]*model.Body

	subs map[int]func(Event)
	next int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		bodies: make(map[string]*model.Body),
		subs:   make(map[int]func(Event)),
	}
}

// AddBody registers a new body. It returns an error if the name is empty or
// already taken.
func (kb *KnowledgeBase) AddBody(b *model.Body) error {
	if b == nil || b.Name == "" {
		return fmt.Errorf("body name is required")
	}
	if b.Shape.EquatorialRadius <= 0 {
		return fmt.Errorf("body %q: equatorial radius must be positive", b.Name)
	}
	if b.Shape.Flattening < 0 || b.Shape.Flattening >= 1 {
		return fmt.Errorf("body %q: flattening must be in [0, 1)", b.Name)
	}

	kb.mu.Lock()
	if _, exists := kb.bodies[b.Name]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("body with name %q already exists", b.Name)
	}
	// store pointer so that motion models can update in-place
	kb.bodies[b.Name] = b
	event := Event{Type: EventBodyAdded, Body: *b}
	subs := kb.snapshotSubs()
	kb.mu.Unlock()

	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// FindBody resolves a body by name. The returned pointer is the live,
// registry-owned body; callers must not retain it past the registry's life.
func (kb *KnowledgeBase) FindBody(name string) (*model.Body, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	b, ok := kb.bodies[name]
	return b, ok
}

// GetBody returns the body with the given name, or nil if not found.
func (kb *KnowledgeBase) GetBody(name string) *model.Body {
	b, _ := kb.FindBody(name)
	return b
}

// ListBodies returns a snapshot slice of all bodies sorted by name.
func (kb *KnowledgeBase) ListBodies() []*model.Body {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]*model.Body, 0, len(kb.bodies))
	for _, b := range kb.bodies {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// UpdateBodyState sets a body's rotation and centre position and notifies
// subscribers. The epoch only advances when the state actually changed.
func (kb *KnowledgeBase) UpdateBodyState(name string, rotation float64, position mgl64.Vec3) error {
	kb.mu.Lock()
	b, ok := kb.bodies[name]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("update %q: %w", name, ErrBodyNotFound)
	}
	if b.Rotation == rotation && b.Position == position {
		kb.mu.Unlock()
		return nil
	}
	b.Rotation = rotation
	b.Position = position
	b.Epoch++
	event := Event{
		Type: EventBodyMoved,
		Body: *b, // copy for safety
	}
	subs := kb.snapshotSubs()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.next
	kb.next++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// snapshotSubs must be called with kb.mu held.
func (kb *KnowledgeBase) snapshotSubs() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	return subs
}
