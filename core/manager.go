package core

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/wallstream/internal/logging"
	"github.com/signalsfoundry/wallstream/model"
)

var (
	// ErrNotBuildMode is returned by build operations outside build mode.
	ErrNotBuildMode = errors.New("wall manager is not in build mode")
	// ErrViewerNotReady is returned when a waypoint is requested before the
	// viewer is on a body.
	ErrViewerNotReady = errors.New("viewer not ready")
)

// frameLogInterval bounds how often the per-frame summary is logged.
const frameLogInterval = 5 * time.Second

// ManagerStats is a point-in-time summary of the manager's chains.
type ManagerStats struct {
	Chains   int
	Visible  int
	Segments int
}

type managedChain struct {
	id    uuid.UUID
	chain *WallChain
}

// WallManager owns an ordered collection of wall chains, drives their ticks,
// loads and saves them through a WaypointStore and implements build mode.
type WallManager struct {
	host  *Host
	log   logging.Logger
	store WaypointStore

	chains *list.List
	index  map[uuid.UUID]*list.Element

	loaded    bool
	buildMode bool
	destroyed bool

	// running position for build mode
	last     model.GeoCoordinate
	lastBody string
	hasLast  bool

	frameLog rate.Sometimes
}

var _ Tickable = (*WallManager)(nil)

// NewWallManager returns an empty manager. Saved walls are loaded on the
// first Update in which the viewer is ready. A nil store leaves the manager
// in build mode with nothing to load.
func NewWallManager(host *Host, store WaypointStore) *WallManager {
	return &WallManager{
		host:     host,
		log:      host.Log.With(logging.String("component", "wall_manager")),
		store:    store,
		chains:   list.New(),
		index:    make(map[uuid.UUID]*list.Element),
		frameLog: rate.Sometimes{Interval: frameLogInterval},
	}
}

// Add constructs a chain for the pair and appends it.
func (m *WallManager) Add(p model.WaypointPair) uuid.UUID {
	id := uuid.New()
	c := NewWallChainFromPair(m.host, p)
	m.index[id] = m.chains.PushBack(&managedChain{id: id, chain: c})
	return id
}

// Remove destroys and removes the chain with the given ID.
func (m *WallManager) Remove(id uuid.UUID) bool {
	e, ok := m.index[id]
	if !ok {
		return false
	}
	m.removeElement(e)
	return true
}

// RemoveLast destroys the newest chain and makes its start the running
// build position, so the next waypoint redraws the removed wall.
func (m *WallManager) RemoveLast() (model.WaypointPair, bool) {
	e := m.chains.Back()
	if e == nil {
		return model.WaypointPair{}, false
	}
	pair := e.Value.(*managedChain).chain.Pair()
	m.removeElement(e)

	m.last = pair.Start
	m.lastBody = pair.BodyName
	m.hasLast = true
	return pair, true
}

func (m *WallManager) removeElement(e *list.Element) {
	mc := m.chains.Remove(e).(*managedChain)
	delete(m.index, mc.id)
	mc.chain.Destroy()
}

// Clear destroys every chain and forgets the running build position.
func (m *WallManager) Clear() {
	for e := m.chains.Front(); e != nil; e = e.Next() {
		e.Value.(*managedChain).chain.Destroy()
	}
	m.chains.Init()
	m.index = make(map[uuid.UUID]*list.Element)
	m.hasLast = false
}

// Len returns the number of chains.
func (m *WallManager) Len() int { return m.chains.Len() }

// IDs returns chain IDs in insertion order.
func (m *WallManager) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, m.chains.Len())
	for e := m.chains.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(*managedChain).id)
	}
	return ids
}

// Chain returns the chain with the given ID.
func (m *WallManager) Chain(id uuid.UUID) (*WallChain, bool) {
	e, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return e.Value.(*managedChain).chain, true
}

// Chains returns the chains in insertion order.
func (m *WallManager) Chains() []*WallChain {
	out := make([]*WallChain, 0, m.chains.Len())
	for e := m.chains.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*managedChain).chain)
	}
	return out
}

// Pairs returns every chain as a waypoint pair, in insertion order.
func (m *WallManager) Pairs() []model.WaypointPair {
	out := make([]model.WaypointPair, 0, m.chains.Len())
	for e := m.chains.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*managedChain).chain.Pair())
	}
	return out
}

// Stats counts chains, visible chains and live segments.
func (m *WallManager) Stats() ManagerStats {
	var s ManagerStats
	for e := m.chains.Front(); e != nil; e = e.Next() {
		c := e.Value.(*managedChain).chain
		s.Chains++
		if c.Visible() {
			s.Visible++
		}
		s.Segments += c.SegmentCount()
	}
	return s
}

// Loaded reports whether the initial load has run.
func (m *WallManager) Loaded() bool { return m.loaded }

// BuildMode reports whether waypoints can be placed.
func (m *WallManager) BuildMode() bool { return m.buildMode }

// SetBuildMode switches build mode on or off. Turning it on starts a fresh
// run.
func (m *WallManager) SetBuildMode(on bool) {
	if on && !m.buildMode {
		m.hasLast = false
	}
	m.buildMode = on
}

// RunningPosition returns the last placed waypoint, if any.
func (m *WallManager) RunningPosition() (string, model.GeoCoordinate, bool) {
	return m.lastBody, m.last, m.hasLast
}

// Update runs the deferred load, then advances every chain in order.
func (m *WallManager) Update(ctx context.Context) {
	if m.destroyed {
		return
	}
	started := time.Now()

	if !m.loaded && m.viewerReady() {
		if err := m.Load(ctx); err != nil {
			m.log.Error(ctx, "failed to load saved walls", logging.Err(err))
		}
	}

	for e := m.chains.Front(); e != nil; e = e.Next() {
		e.Value.(*managedChain).chain.Update(ctx)
	}

	stats := m.Stats()
	m.host.Metrics.SetStreamingCounts(stats.Chains, stats.Visible, stats.Segments)
	elapsed := time.Since(started)
	m.host.Metrics.ObserveFrame(elapsed)
	m.frameLog.Do(func() {
		m.log.Debug(ctx, "wall frame",
			logging.Int("chains", stats.Chains),
			logging.Int("visible", stats.Visible),
			logging.Int("segments", stats.Segments),
			logging.Any("elapsed", elapsed),
		)
	})
}

// FixedUpdate forwards the physics step to every chain in order.
func (m *WallManager) FixedUpdate(ctx context.Context) {
	if m.destroyed {
		return
	}
	for e := m.chains.Front(); e != nil; e = e.Next() {
		e.Value.(*managedChain).chain.FixedUpdate(ctx)
	}
}

// MakeCollidable makes every chain collidable.
func (m *WallManager) MakeCollidable() {
	for e := m.chains.Front(); e != nil; e = e.Next() {
		e.Value.(*managedChain).chain.MakeCollidable()
	}
}

// Destroy tears down every chain. The manager ignores ticks afterwards.
func (m *WallManager) Destroy() {
	if m.destroyed {
		return
	}
	m.Clear()
	m.destroyed = true
}

func (m *WallManager) viewerReady() bool {
	v := m.host.Viewer
	return v != nil && v.Ready()
}

// Load reads the store and appends one collidable chain per pair. Nothing is
// added unless the whole store parses. A store with no saved walls switches
// the manager into build mode and is not an error.
func (m *WallManager) Load(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "WallManager.Load")
	defer span.End()

	m.loaded = true
	if m.store == nil {
		m.buildMode = true
		return nil
	}

	pairs, err := m.store.Load(ctx)
	if errors.Is(err, ErrNoWaypoints) {
		m.buildMode = true
		m.log.Info(ctx, "no saved walls; entering build mode")
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return fmt.Errorf("load walls: %w", err)
	}

	for _, p := range pairs {
		p.Collidable = true
		m.Add(p)
	}
	span.SetAttributes(attribute.Int("wall.pairs", len(pairs)))
	m.log.Info(ctx, "loaded saved walls", logging.Int("pairs", len(pairs)))
	return nil
}

// Save writes every chain to the store.
func (m *WallManager) Save(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "WallManager.Save")
	defer span.End()

	if m.store == nil {
		return fmt.Errorf("save walls: no store configured")
	}
	pairs := m.Pairs()
	span.SetAttributes(attribute.Int("wall.pairs", len(pairs)))
	if err := m.store.Save(ctx, pairs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return fmt.Errorf("save walls: %w", err)
	}
	m.log.Info(ctx, "saved walls", logging.Int("pairs", len(pairs)))
	return nil
}

// AddWaypoint places a waypoint at the viewer's current position. When a
// previous waypoint on the same body exists, a non-collidable chain from it
// is added and its ID returned; otherwise the waypoint only starts a new run
// and uuid.Nil is returned.
func (m *WallManager) AddWaypoint(ctx context.Context) (uuid.UUID, error) {
	if !m.buildMode {
		return uuid.Nil, ErrNotBuildMode
	}
	v := m.host.Viewer
	if v == nil || !v.Ready() || v.CurrentBody() == nil {
		return uuid.Nil, ErrViewerNotReady
	}
	body := v.CurrentBody()
	here := ToGeo(body, v.WorldPosition())

	var id uuid.UUID
	if m.hasLast && m.lastBody == body.Name {
		id = m.Add(model.WaypointPair{
			BodyName: body.Name,
			Start:    m.last,
			End:      here,
		})
		m.log.Debug(ctx, "wall added",
			logging.String("body", body.Name),
			logging.String("start", m.last.String()),
			logging.String("end", here.String()),
		)
	}
	m.last = here
	m.lastBody = body.Name
	m.hasLast = true
	return id, nil
}

// Break forgets the running position so the next waypoint starts a new wall.
func (m *WallManager) Break() {
	m.hasLast = false
}

// Finish saves every chain, makes them collidable and leaves build mode. On
// a save error nothing else changes.
func (m *WallManager) Finish(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "WallManager.Finish")
	defer span.End()

	if !m.buildMode {
		return ErrNotBuildMode
	}
	if err := m.Save(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finish failed")
		return err
	}
	m.MakeCollidable()
	m.buildMode = false
	m.hasLast = false
	return nil
}
