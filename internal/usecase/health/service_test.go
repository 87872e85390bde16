package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct {
	err error
}

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

type mockCorpus struct {
	name  string
	count int
	err   error
}

func (m *mockCorpus) Name() string                         { return m.name }
func (m *mockCorpus) Count(_ context.Context) (int, error) { return m.count, m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockEmbeddingChecker{},
		&mockCorpus{name: "anomaly", count: 10},
		&mockCorpus{name: "malicious", count: 4},
	)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["database"] != CheckOK {
		t.Errorf("expected database %q, got %q", CheckOK, r.Checks["database"])
	}
	if r.Checks["embedding"] != CheckOK {
		t.Errorf("expected embedding %q, got %q", CheckOK, r.Checks["embedding"])
	}
	if r.Corpora["anomaly"] != 10 || r.Corpora["malicious"] != 4 {
		t.Errorf("corpora counts: %v", r.Corpora)
	}
}

func TestCheck_DBError(t *testing.T) {
	svc := New(&mockDBPinger{err: errors.New("conn refused")}, &mockEmbeddingChecker{},
		&mockCorpus{name: "anomaly"},
	)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
	if len(r.Corpora) != 0 {
		t.Error("corpus counts should be skipped when the database is down")
	}
}

func TestCheck_EmbeddingError(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockEmbeddingChecker{err: errors.New("timeout")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["database"] != CheckOK {
		t.Errorf("expected database %q, got %q", CheckOK, r.Checks["database"])
	}
	if r.Checks["embedding"] != CheckError {
		t.Errorf("expected embedding %q, got %q", CheckError, r.Checks["embedding"])
	}
}

func TestCheck_CorpusCountError(t *testing.T) {
	svc := New(&mockDBPinger{}, &mockEmbeddingChecker{},
		&mockCorpus{name: "anomaly", err: errors.New("index gone")},
		&mockCorpus{name: "malicious", count: 2},
	)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["corpus_anomaly"] != CheckError {
		t.Errorf("expected corpus_anomaly %q, got %q", CheckError, r.Checks["corpus_anomaly"])
	}
	if r.Corpora["malicious"] != 2 {
		t.Errorf("healthy corpus count missing: %v", r.Corpora)
	}
}

func TestCheck_NoEmbedding(t *testing.T) {
	svc := New(&mockDBPinger{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, ok := r.Checks["embedding"]; ok {
		t.Error("embedding check should be absent when embedding is nil")
	}
}
