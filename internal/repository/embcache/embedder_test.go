package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardrail/internal/db"
	"github.com/kailas-cloud/guardrail/internal/domain"
)

// --- Mocks ---

type mockInner struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockInner) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

type mockKV struct {
	data    map[string][]byte
	ttls    map[string]time.Duration
	setErr  error
	failGet bool
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.failGet {
		return nil, errors.New("kv down")
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) Set(_ context.Context, key string, value []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

// --- Tests ---

func TestEmbed_MissThenHit(t *testing.T) {
	inner := &mockInner{result: domain.EmbeddingResult{
		Embedding:   []float32{1, 2, 3},
		TotalTokens: 7,
	}}
	kv := newMockKV()
	c := New(inner, kv, "test-model", time.Hour, nil, zap.NewNop())

	first, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls after miss: got %d, want 1", inner.calls)
	}
	if first.TotalTokens != 7 {
		t.Errorf("miss must report real token usage, got %d", first.TotalTokens)
	}

	second, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls after hit: got %d, want still 1", inner.calls)
	}
	if second.TotalTokens != 0 {
		t.Errorf("cache hit must report zero tokens, got %d", second.TotalTokens)
	}
	if len(second.Embedding) != 3 || second.Embedding[2] != 3 {
		t.Errorf("cached vector mismatch: %v", second.Embedding)
	}
}

func TestEmbed_DifferentModels_DifferentKeys(t *testing.T) {
	kv := newMockKV()
	inner := &mockInner{result: domain.EmbeddingResult{Embedding: []float32{1}}}

	a := New(inner, kv, "model-a", time.Hour, nil, zap.NewNop())
	b := New(inner, kv, "model-b", time.Hour, nil, zap.NewNop())

	if _, err := a.Embed(context.Background(), "same text"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Embed(context.Background(), "same text"); err != nil {
		t.Fatal(err)
	}

	if inner.calls != 2 {
		t.Errorf("model change must miss the cache: inner calls %d, want 2", inner.calls)
	}
	if len(kv.data) != 2 {
		t.Errorf("expected two distinct cache keys, got %d", len(kv.data))
	}
}

func TestEmbed_KVFailure_FallsThrough(t *testing.T) {
	kv := newMockKV()
	kv.failGet = true
	kv.setErr = errors.New("kv down")
	inner := &mockInner{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	c := New(inner, kv, "m", time.Hour, nil, zap.NewNop())

	if _, err := c.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("cache failure must not break embedding: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls: got %d", inner.calls)
	}
}

func TestEmbed_InnerError_Propagates(t *testing.T) {
	inner := &mockInner{err: domain.ErrEmbeddingFailed}
	c := New(inner, newMockKV(), "m", time.Hour, nil, zap.NewNop())

	_, err := c.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Errorf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func TestEmbed_ZeroTTL_StoredWithoutExpiry(t *testing.T) {
	kv := newMockKV()
	inner := &mockInner{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	c := New(inner, kv, "m", 0, nil, zap.NewNop())

	if _, err := c.Embed(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}

	if len(kv.data) != 1 {
		t.Fatal("vector not cached")
	}
	if len(kv.ttls) != 0 {
		t.Error("zero ttl must use the plain Set path")
	}
}
