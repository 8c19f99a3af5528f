package render

import (
	"errors"
	"fmt"
	"image/color"
	"sort"
	"sync"
)

// Op names a MemoryBackend operation for failure injection.
type Op string

const (
	OpCreateMesh     Op = "create_mesh"
	OpCreateNode     Op = "create_node"
	OpAttachCollider Op = "attach_collider"
)

// ErrInjected is the error returned by operations armed with FailNext.
var ErrInjected = errors.New("injected backend failure")

// NodeSnapshot is a read-only copy of a live node's state.
type NodeSnapshot struct {
	Handle    NodeHandle
	Mesh      MeshHandle
	Texture   TextureHandle
	Transform Transform
	Collider  *Bounds
	Placed    bool
}

// Stats counts backend calls since construction.
type Stats struct {
	MeshesCreated      int
	MeshesDestroyed    int
	NodesCreated       int
	NodesDestroyed     int
	CollidersAttached  int
	CollidersDetached  int
	TransformsApplied  int
	TexturesRegistered int
}

type memNode struct {
	mesh      MeshHandle
	texture   TextureHandle
	transform Transform
	placed    bool
	collider  *Bounds
}

// MemoryBackend is an in-process Backend and TextureProvider. It keeps every
// resource in maps so callers can inspect what a real engine would have drawn.
type MemoryBackend struct {
	mu sync.RWMutex

	nextID   uint64
	meshes   map[MeshHandle]*MeshData
	nodes    map[NodeHandle]*memNode
	textures map[string]TextureHandle
	solids   map[color.RGBA]TextureHandle
	fail     map[Op]int
	stats    Stats
}

// NewMemoryBackend constructs an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		meshes:   make(map[MeshHandle]*MeshData),
		nodes:    make(map[NodeHandle]*memNode),
		textures: make(map[string]TextureHandle),
		solids:   make(map[color.RGBA]TextureHandle),
		fail:     make(map[Op]int),
	}
}

func (m *MemoryBackend) id() uint64 {
	m.nextID++
	return m.nextID
}

// RegisterTexture makes a named texture available to LookupTexture.
func (m *MemoryBackend) RegisterTexture(name string) TextureHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.textures[name]; ok {
		return h
	}
	h := TextureHandle(m.id())
	m.textures[name] = h
	m.stats.TexturesRegistered++
	return h
}

// LookupTexture implements TextureProvider.
func (m *MemoryBackend) LookupTexture(name string) (TextureHandle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.textures[name]
	return h, ok
}

// SolidTexture implements TextureProvider.
func (m *MemoryBackend) SolidTexture(c color.RGBA) TextureHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.solids[c]; ok {
		return h
	}
	h := TextureHandle(m.id())
	m.solids[c] = h
	m.stats.TexturesRegistered++
	return h
}

// FailNext arms op to fail for its next n invocations.
func (m *MemoryBackend) FailNext(op Op, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = n
}

// shouldFail must be called with m.mu held.
func (m *MemoryBackend) shouldFail(op Op) bool {
	if m.fail[op] > 0 {
		m.fail[op]--
		return true
	}
	return false
}

// CreateMesh implements Backend. The mesh data is copied.
func (m *MemoryBackend) CreateMesh(data *MeshData) (MeshHandle, error) {
	if data == nil {
		return 0, fmt.Errorf("create mesh: nil data")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail(OpCreateMesh) {
		return 0, fmt.Errorf("create mesh: %w", ErrInjected)
	}
	cp := &MeshData{
		Vertices:  append(data.Vertices[:0:0], data.Vertices...),
		Normals:   append(data.Normals[:0:0], data.Normals...),
		UVs:       append(data.UVs[:0:0], data.UVs...),
		Triangles: append(data.Triangles[:0:0], data.Triangles...),
	}
	h := MeshHandle(m.id())
	m.meshes[h] = cp
	m.stats.MeshesCreated++
	return h, nil
}

// DestroyMesh implements Backend. Unknown handles are ignored.
func (m *MemoryBackend) DestroyMesh(mesh MeshHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meshes[mesh]; !ok {
		return
	}
	delete(m.meshes, mesh)
	m.stats.MeshesDestroyed++
}

// CreateNode implements Backend.
func (m *MemoryBackend) CreateNode(mesh MeshHandle, texture TextureHandle) (NodeHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail(OpCreateNode) {
		return 0, fmt.Errorf("create node: %w", ErrInjected)
	}
	if _, ok := m.meshes[mesh]; !ok {
		return 0, fmt.Errorf("create node for mesh %d: %w", mesh, ErrUnknownHandle)
	}
	h := NodeHandle(m.id())
	m.nodes[h] = &memNode{mesh: mesh, texture: texture}
	m.stats.NodesCreated++
	return h, nil
}

// DestroyNode implements Backend. Any collider goes with the node.
func (m *MemoryBackend) DestroyNode(node NodeHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[node]
	if !ok {
		return
	}
	if n.collider != nil {
		m.stats.CollidersDetached++
	}
	delete(m.nodes, node)
	m.stats.NodesDestroyed++
}

// AttachCollider implements Backend.
func (m *MemoryBackend) AttachCollider(node NodeHandle, bounds Bounds) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail(OpAttachCollider) {
		return fmt.Errorf("attach collider: %w", ErrInjected)
	}
	n, ok := m.nodes[node]
	if !ok {
		return fmt.Errorf("attach collider to node %d: %w", node, ErrUnknownHandle)
	}
	if n.collider != nil {
		return fmt.Errorf("node %d already has a collider", node)
	}
	b := bounds
	n.collider = &b
	m.stats.CollidersAttached++
	return nil
}

// DetachCollider implements Backend.
func (m *MemoryBackend) DetachCollider(node NodeHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[node]
	if !ok || n.collider == nil {
		return
	}
	n.collider = nil
	m.stats.CollidersDetached++
}

// SetTransform implements Backend.
func (m *MemoryBackend) SetTransform(node NodeHandle, t Transform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[node]
	if !ok {
		return
	}
	n.transform = t
	n.placed = true
	m.stats.TransformsApplied++
}

// Node returns a snapshot of one node.
func (m *MemoryBackend) Node(node NodeHandle) (NodeSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[node]
	if !ok {
		return NodeSnapshot{}, false
	}
	return snapshot(node, n), true
}

// Nodes returns snapshots of every live node ordered by handle.
func (m *MemoryBackend) Nodes() []NodeSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]NodeSnapshot, 0, len(m.nodes))
	for h, n := range m.nodes {
		res = append(res, snapshot(h, n))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Handle < res[j].Handle })
	return res
}

// Mesh returns the stored mesh data for a handle.
func (m *MemoryBackend) Mesh(mesh MeshHandle) (*MeshData, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.meshes[mesh]
	return d, ok
}

// LiveMeshes returns the number of meshes not yet destroyed.
func (m *MemoryBackend) LiveMeshes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.meshes)
}

// LiveNodes returns the number of nodes not yet destroyed.
func (m *MemoryBackend) LiveNodes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// Stats returns a copy of the call counters.
func (m *MemoryBackend) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func snapshot(h NodeHandle, n *memNode) NodeSnapshot {
	s := NodeSnapshot{
		Handle:    h,
		Mesh:      n.mesh,
		Texture:   n.texture,
		Transform: n.transform,
		Placed:    n.placed,
	}
	if n.collider != nil {
		b := *n.collider
		s.Collider = &b
	}
	return s
}
