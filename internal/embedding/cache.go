package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"
)

// Cache stores vectors by content key. Writes are insert-if-absent, so
// concurrent writers of the same key never overwrite each other.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	PutIfAbsent(ctx context.Context, key string, vector []float32) error
}

// CacheKey hashes the model name together with the normalized text. Backends
// with a configurable output size report it in the model name, see withDimension.
func CacheKey(model, normalized string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}

// withDimension tags a model name with a non-default output size, so vectors of
// different lengths never share a cache key.
func withDimension(model string, dimension int) string {
	if dimension <= 0 {
		return model
	}
	return model + "@" + strconv.Itoa(dimension)
}

// MemoryCache is a run-scoped cache.
type MemoryCache struct {
	entries sync.Map
	size    atomic.Int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	value, ok := c.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	return clone(value.([]float32)), true, nil
}

func (c *MemoryCache) PutIfAbsent(_ context.Context, key string, vector []float32) error {
	if _, loaded := c.entries.LoadOrStore(key, clone(vector)); !loaded {
		c.size.Add(1)
	}
	return nil
}

func (c *MemoryCache) Len() int {
	return int(c.size.Load())
}

func clone(v []float32) []float32 {
	return append([]float32(nil), v...)
}
