package baseline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/guardrail/internal/domain"
)

// Service is the corpus management surface: single and bulk ingestion,
// time-ranged retrieval and deletion, corpus stats. Consumed by
// operational tooling, not by the request hot path.
type Service struct {
	repos  map[domain.Kind]Repository
	embed  Embedder
	logger *zap.Logger
}

// New creates a corpus management service over both corpora.
func New(anomaly, malicious Repository, embed Embedder, logger *zap.Logger) *Service {
	return &Service{
		repos: map[domain.Kind]Repository{
			domain.KindAnomaly:   anomaly,
			domain.KindMalicious: malicious,
		},
		embed:  embed,
		logger: logger,
	}
}

func (s *Service) repo(kind domain.Kind) (Repository, error) {
	repo, ok := s.repos[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCorpus, kind)
	}
	return repo, nil
}

// Add embeds and stores a single entry. A zero timestamp means "now".
// Duplicate texts are valid; they increase pattern density.
func (s *Service) Add(ctx context.Context, kind domain.Kind, entry domain.Entry) (int, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return 0, err
	}

	rec, err := s.buildRecord(ctx, entry)
	if err != nil {
		return 0, err
	}

	if err := repo.Insert(ctx, rec); err != nil {
		return 0, err
	}
	return 1, nil
}

// BulkAdd embeds and stores each entry. An embedding failure for one
// entry is logged and the entry skipped; it never aborts the batch.
// Store failures do abort: they affect every remaining entry alike.
func (s *Service) BulkAdd(ctx context.Context, kind domain.Kind, entries []domain.Entry) (int, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return 0, err
	}

	added := 0
	for i, entry := range entries {
		rec, err := s.buildRecord(ctx, entry)
		if err != nil {
			s.logger.Warn("skipping baseline entry",
				zap.String("corpus", string(kind)),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		if err := repo.Insert(ctx, rec); err != nil {
			return added, fmt.Errorf("bulk add %s: %w", kind, err)
		}
		added++
	}

	s.logger.Info("baseline bulk add",
		zap.String("corpus", string(kind)),
		zap.Int("requested", len(entries)),
		zap.Int("added", added),
	)
	return added, nil
}

// List returns entries in the given time range, ascending by timestamp.
func (s *Service) List(ctx context.Context, kind domain.Kind, before, after *time.Time) ([]domain.Entry, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return nil, err
	}

	records, err := repo.List(ctx, before, after)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.Entry, len(records))
	for i, rec := range records {
		entries[i] = domain.Entry{Text: rec.Text, Timestamp: rec.Timestamp}
	}
	return entries, nil
}

// Clear removes records by time range. With no bounds the corpus is
// wiped and recreated empty, returning the prior total.
func (s *Service) Clear(ctx context.Context, kind domain.Kind, before, after *time.Time) (int, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return 0, err
	}

	var removed int
	if before == nil && after == nil {
		removed, err = repo.DropAll(ctx)
	} else {
		removed, err = repo.DeleteRange(ctx, before, after)
	}
	if err != nil {
		return 0, err
	}

	s.logger.Info("baseline clear",
		zap.String("corpus", string(kind)),
		zap.Int("removed", removed),
	)
	return removed, nil
}

// Stats returns the record count and corpus name.
func (s *Service) Stats(ctx context.Context, kind domain.Kind) (domain.CorpusStats, error) {
	repo, err := s.repo(kind)
	if err != nil {
		return domain.CorpusStats{}, err
	}

	n, err := repo.Count(ctx)
	if err != nil {
		return domain.CorpusStats{}, err
	}
	return domain.CorpusStats{TotalRecords: n, Name: repo.Name()}, nil
}

func (s *Service) buildRecord(ctx context.Context, entry domain.Entry) (domain.BaselineRecord, error) {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	emb, err := s.embed.Embed(ctx, entry.Text)
	if err != nil {
		return domain.BaselineRecord{}, fmt.Errorf("embed entry: %w", err)
	}

	return domain.BaselineRecord{
		ID:        uuid.NewString(),
		Vector:    emb.Embedding,
		Text:      entry.Text,
		Timestamp: ts,
	}, nil
}
