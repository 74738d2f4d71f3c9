package index

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

type entry struct {
	id       string
	vector   []float32
	metadata map[string]string
}

// Memory is a flat in-process index. Queries scan every vector.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
	positions map[string]int
}

// NewMemory creates an index for vectors of the given dimension.
func NewMemory(dimension int) *Memory {
	return &Memory{dimension: dimension, positions: make(map[string]int)}
}

func (m *Memory) Dimension() int { return m.dimension }

// Add stores a copy of vector. Adding an existing id replaces it.
func (m *Memory) Add(_ context.Context, id string, vector []float32, metadata map[string]string) error {
	if len(vector) != m.dimension {
		return fmt.Errorf("%w: add %s: got %d, want %d", ErrDimensionMismatch, id, len(vector), m.dimension)
	}

	e := entry{
		id:       id,
		vector:   append([]float32(nil), vector...),
		metadata: maps.Clone(metadata),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if pos, ok := m.positions[id]; ok {
		m.entries[pos] = e
		return nil
	}
	m.positions[id] = len(m.entries)
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query: got %d, want %d", ErrDimensionMismatch, len(vector), m.dimension)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.entries))
	for _, e := range m.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits = append(hits, Hit{
			ID:         e.id,
			Similarity: Cosine(vector, e.vector),
			Metadata:   maps.Clone(e.metadata),
		})
	}

	sortHits(hits)
	return truncate(hits, k), nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close(context.Context) error { return nil }
