package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardrail/internal/domain"
)

// --- Mock ---

type mockIngester struct {
	counts map[domain.Kind]int
	added  map[domain.Kind][]domain.Entry
}

func newMockIngester() *mockIngester {
	return &mockIngester{
		counts: make(map[domain.Kind]int),
		added:  make(map[domain.Kind][]domain.Entry),
	}
}

func (m *mockIngester) BulkAdd(_ context.Context, kind domain.Kind, entries []domain.Entry) (int, error) {
	m.added[kind] = append(m.added[kind], entries...)
	return len(entries), nil
}

func (m *mockIngester) Stats(_ context.Context, kind domain.Kind) (domain.CorpusStats, error) {
	return domain.CorpusStats{TotalRecords: m.counts[kind], Name: string(kind)}, nil
}

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// --- Tests ---

func TestSeed_LoadsBothCorpora(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "anomaly.json", `[{"text":"normal request one"},{"text":"normal request two"}]`)
	writeSeed(t, dir, "malicious.json", `[{"text":"drop table users","timestamp":"2024-01-01T00:00:00Z"}]`)

	ing := newMockIngester()
	loader := NewLoader(dir, ing, zap.NewNop())

	if err := loader.Seed(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ing.added[domain.KindAnomaly]) != 2 {
		t.Errorf("anomaly entries: got %d, want 2", len(ing.added[domain.KindAnomaly]))
	}
	if len(ing.added[domain.KindMalicious]) != 1 {
		t.Errorf("malicious entries: got %d, want 1", len(ing.added[domain.KindMalicious]))
	}
	if got := ing.added[domain.KindMalicious][0].Timestamp.Year(); got != 2024 {
		t.Errorf("seed timestamp not preserved: %d", got)
	}
}

func TestSeed_MissingFiles_NotAnError(t *testing.T) {
	ing := newMockIngester()
	loader := NewLoader(t.TempDir(), ing, zap.NewNop())

	if err := loader.Seed(context.Background()); err != nil {
		t.Fatalf("missing seed files must be tolerated: %v", err)
	}
	if len(ing.added) != 0 {
		t.Error("nothing should be added without seed files")
	}
}

func TestSeed_NonEmptyCorpus_Skipped(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "anomaly.json", `[{"text":"would duplicate"}]`)

	ing := newMockIngester()
	ing.counts[domain.KindAnomaly] = 5

	loader := NewLoader(dir, ing, zap.NewNop())
	if err := loader.Seed(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ing.added[domain.KindAnomaly]) != 0 {
		t.Error("already-populated corpus must not be reseeded")
	}
}

func TestSeed_MalformedFile_Errors(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "malicious.json", `{not an array`)

	loader := NewLoader(dir, newMockIngester(), zap.NewNop())
	if err := loader.Seed(context.Background()); err == nil {
		t.Fatal("malformed seed file must surface an error")
	}
}

func TestSeed_EmptyTextEntries_Dropped(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "anomaly.json", `[{"text":""},{"text":"kept"}]`)

	ing := newMockIngester()
	loader := NewLoader(dir, ing, zap.NewNop())
	if err := loader.Seed(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ing.added[domain.KindAnomaly]) != 1 {
		t.Errorf("entries: got %d, want 1", len(ing.added[domain.KindAnomaly]))
	}
}
