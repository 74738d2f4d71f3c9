package embedding

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestVectorEncodingIsLossless(t *testing.T) {
	t.Parallel()

	in := []float32{0, -1.5, float32(math.Pi), math.MaxFloat32, math.SmallestNonzeroFloat32}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("value %d changed: %v != %v", i, in[i], out[i])
		}
	}

	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestRedisCache(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	cache := NewRedisCache(client, "", time.Hour)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected miss without error, got ok=%v err=%v", ok, err)
	}

	if err := cache.PutIfAbsent(ctx, "k", []float32{1, 2}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cache.PutIfAbsent(ctx, "k", []float32{3, 4}); err != nil {
		t.Fatalf("second put: %v", err)
	}

	got, ok, err := cache.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected first write to win, got %v", got)
	}

	if client.ttls[DefaultRedisPrefix+"k"] != time.Hour {
		t.Fatalf("expected ttl to be passed through")
	}
}

func TestRedisCacheSharedAcrossServices(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()

	first := &stubBackend{results: []stubResult{{vector: []float32{1, 2, 3}}}}
	if _, err := NewService(first, Options{Cache: NewRedisCache(client, "", 0)}).Embed(context.Background(), "text"); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := &stubBackend{}
	vector, err := NewService(second, Options{Cache: NewRedisCache(client, "", 0)}).Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.callCount() != 0 {
		t.Fatalf("expected persisted cache to serve the second run")
	}
	if len(vector) != 3 || vector[2] != 3 {
		t.Fatalf("unexpected cached vector %v", vector)
	}
}

func TestCacheKeyDependsOnModel(t *testing.T) {
	t.Parallel()

	if CacheKey("a", "text") == CacheKey("b", "text") {
		t.Fatalf("expected different keys for different models")
	}
	if CacheKey("a", "text") != CacheKey("a", "text") {
		t.Fatalf("expected stable keys")
	}
}
