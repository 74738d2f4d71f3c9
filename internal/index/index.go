package index

import (
	"context"
	"errors"
	"math"
	"sort"
)

// ErrDimensionMismatch means a vector does not have the dimension the index was built for.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is a single query result.
type Hit struct {
	ID         string
	Similarity float64
	Metadata   map[string]string
}

// Index stores vectors for one matching run and answers nearest-neighbour
// queries by cosine similarity.
type Index interface {
	Add(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	// Query returns at most k hits ordered by descending similarity. k <= 0 means all.
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Len() int
	Dimension() int
	Close(ctx context.Context) error
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// sortHits orders by similarity descending, then by ID.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
}

func truncate(hits []Hit, k int) []Hit {
	if k > 0 && len(hits) > k {
		return hits[:k]
	}
	return hits
}

// Factory builds an empty index once the run knows its vector dimension.
type Factory func(ctx context.Context, dimension int) (Index, error)

// MemoryFactory builds in-process indexes.
func MemoryFactory() Factory {
	return func(_ context.Context, dimension int) (Index, error) {
		return NewMemory(dimension), nil
	}
}
