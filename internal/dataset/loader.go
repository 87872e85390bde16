// Package dataset seeds the baseline corpora from local JSON files at
// startup. Each corpus reads <dir>/<corpus>.json holding an array of
// {"text": ..., "timestamp": ...} objects; a missing file means no
// seed data for that corpus, which is not an error.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardrail/internal/domain"
)

// Ingester receives seed entries for one corpus.
type Ingester interface {
	BulkAdd(ctx context.Context, kind domain.Kind, entries []domain.Entry) (int, error)
	Stats(ctx context.Context, kind domain.Kind) (domain.CorpusStats, error)
}

type seedEntry struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Loader seeds corpora from a directory of JSON files.
type Loader struct {
	dir      string
	ingester Ingester
	logger   *zap.Logger
}

// NewLoader creates a Loader reading from dir.
func NewLoader(dir string, ingester Ingester, logger *zap.Logger) *Loader {
	return &Loader{dir: dir, ingester: ingester, logger: logger}
}

// Seed loads every corpus that has a seed file and is currently empty.
// A corpus that already holds records is left untouched so restarts do
// not duplicate seed data.
func (l *Loader) Seed(ctx context.Context) error {
	for _, kind := range domain.Kinds() {
		if err := l.seedCorpus(ctx, kind); err != nil {
			return fmt.Errorf("seed %s corpus: %w", kind, err)
		}
	}
	return nil
}

func (l *Loader) seedCorpus(ctx context.Context, kind domain.Kind) error {
	path := filepath.Join(l.dir, string(kind)+".json")

	entries, err := readSeedFile(path)
	if err != nil {
		return err
	}
	if entries == nil {
		l.logger.Info("no seed file for corpus",
			zap.String("corpus", string(kind)),
			zap.String("path", path),
		)
		return nil
	}

	stats, err := l.ingester.Stats(ctx, kind)
	if err != nil {
		return err
	}
	if stats.TotalRecords > 0 {
		l.logger.Info("corpus already seeded",
			zap.String("corpus", string(kind)),
			zap.Int("records", stats.TotalRecords),
		)
		return nil
	}

	added, err := l.ingester.BulkAdd(ctx, kind, entries)
	if err != nil {
		return err
	}

	l.logger.Info("corpus seeded",
		zap.String("corpus", string(kind)),
		zap.String("path", path),
		zap.Int("loaded", len(entries)),
		zap.Int("added", added),
	)
	return nil
}

// readSeedFile parses one seed file. Returns nil entries when the file
// does not exist.
func readSeedFile(path string) ([]domain.Entry, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}

	var raw []seedEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	entries := make([]domain.Entry, 0, len(raw))
	for _, e := range raw {
		if e.Text == "" {
			continue
		}
		entries = append(entries, domain.Entry{Text: e.Text, Timestamp: e.Timestamp})
	}
	return entries, nil
}
