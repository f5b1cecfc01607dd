package store

import (
	"context"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// Search widening for filtered queries on the memory backend.
const (
	memoryOverFetch   = 4
	memoryMinFetch    = 32
	defaultHNSWM      = 16
	defaultHNSWSearch = 20
)

type memoryPoint struct {
	key     uint64
	vector  []float32
	payload map[string]any
}

// MemoryIndex implements VectorIndex in process with a coder/hnsw graph.
// Filtered searches over-fetch from the graph and fall back to an exact
// scan when the filter leaves too few candidates.
type MemoryIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	points  map[string]*memoryPoint
	keyMap  map[uint64]string // internal key -> id; orphaned keys are absent
	nextKey uint64

	closed bool
}

// Verify interface implementation at compile time
var _ VectorIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty in-memory index for vectors of size dims.
func NewMemoryIndex(dims int) *MemoryIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = defaultHNSWM
	graph.EfSearch = defaultHNSWSearch
	graph.Ml = 0.25

	return &MemoryIndex{
		graph:  graph,
		dims:   dims,
		points: make(map[string]*memoryPoint),
		keyMap: make(map[uint64]string),
	}
}

// EnsureCollection is a no-op; the collection exists from construction.
func (m *MemoryIndex) EnsureCollection(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errClosed("memory")
	}
	return nil
}

// Upsert inserts or replaces points.
// Replaced graph nodes are orphaned rather than deleted from the graph.
func (m *MemoryIndex) Upsert(_ context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if err := checkDimensions(m.dims, p.Vector); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed("memory")
	}

	for _, p := range points {
		if old, ok := m.points[p.ID]; ok {
			delete(m.keyMap, old.key)
		}

		key := m.nextKey
		m.nextKey++
		vec := normalizedCopy(p.Vector)
		m.graph.Add(hnsw.MakeNode(key, vec))

		m.keyMap[key] = p.ID
		m.points[p.ID] = &memoryPoint{key: key, vector: vec, payload: NormalizePayload(p.Payload)}
	}
	return nil
}

// Search returns the most similar points matching filter.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		return []ScoredPoint{}, nil
	}
	if err := checkDimensions(m.dims, vector); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed("memory")
	}
	if len(m.points) == 0 {
		return []ScoredPoint{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := normalizedCopy(vector)

	orphans := m.graph.Len() - len(m.points)
	fetch := limit + orphans
	if !filter.Empty() {
		fetch = max(limit*memoryOverFetch, memoryMinFetch) + orphans
	}
	fetch = min(fetch, m.graph.Len())

	hits := make([]ScoredPoint, 0, limit)
	for _, node := range m.graph.Search(query, fetch) {
		id, ok := m.keyMap[node.Key]
		if !ok {
			continue
		}
		p := m.points[id]
		if !filter.Match(p.payload) {
			continue
		}
		hits = append(hits, ScoredPoint{ID: id, Score: dot(query, p.vector), Payload: clonePayload(p.payload)})
	}

	if len(hits) < limit && fetch < m.graph.Len() {
		return m.exactSearch(query, filter, limit), nil
	}

	sortScored(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) exactSearch(query []float32, filter Filter, limit int) []ScoredPoint {
	best := &topK{limit: limit}
	for id, p := range m.points {
		if !filter.Match(p.payload) {
			continue
		}
		best.offer(ScoredPoint{ID: id, Score: dot(query, p.vector), Payload: p.payload})
	}
	hits := best.result()
	for i := range hits {
		hits[i].Payload = clonePayload(hits[i].Payload)
	}
	return hits
}

// Scroll pages through matching points in id order. The cursor is the last
// id of the previous page.
func (m *MemoryIndex) Scroll(_ context.Context, filter Filter, limit int, cursor string) ([]Record, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, "", errClosed("memory")
	}
	if limit <= 0 {
		return []Record{}, "", nil
	}

	ids := make([]string, 0, len(m.points))
	for id, p := range m.points {
		if id > cursor && filter.Match(p.payload) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	next := ""
	if len(ids) > limit {
		ids = ids[:limit]
		next = ids[limit-1]
	}

	page := make([]Record, len(ids))
	for i, id := range ids {
		page[i] = Record{ID: id, Payload: clonePayload(m.points[id].payload)}
	}
	return page, next, nil
}

// Delete removes every point matching filter.
func (m *MemoryIndex) Delete(_ context.Context, filter Filter) error {
	if err := refuseEmptyFilter(filter); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed("memory")
	}

	for id, p := range m.points {
		if filter.Match(p.payload) {
			delete(m.keyMap, p.key)
			delete(m.points, id)
		}
	}
	return nil
}

// Count returns the number of points matching filter.
func (m *MemoryIndex) Count(_ context.Context, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, errClosed("memory")
	}
	if filter.Empty() {
		return len(m.points), nil
	}
	n := 0
	for _, p := range m.points {
		if filter.Match(p.payload) {
			n++
		}
	}
	return n, nil
}

// Dimensions returns the vector size.
func (m *MemoryIndex) Dimensions() int {
	return m.dims
}

// Orphans returns the number of replaced or deleted nodes still in the graph.
func (m *MemoryIndex) Orphans() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0
	}
	return m.graph.Len() - len(m.points)
}

// Close releases the graph.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.graph = nil
	m.points = nil
	m.keyMap = nil
	return nil
}
