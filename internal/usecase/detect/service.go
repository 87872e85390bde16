package detect

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardrail/internal/domain"
	"github.com/kailas-cloud/guardrail/internal/metrics"
)

// Policy holds the configured defaults for one corpus.
type Policy struct {
	Threshold float64
	CompareTo int
}

// DefaultPolicies returns the stock thresholds: anomaly flags on a
// median distance above 0.7, malicious on a minimum distance below
// 0.25, both over the 10 nearest neighbors.
func DefaultPolicies() map[domain.Kind]Policy {
	return map[domain.Kind]Policy{
		domain.KindAnomaly:   {Threshold: 0.7, CompareTo: 10},
		domain.KindMalicious: {Threshold: 0.25, CompareTo: 10},
	}
}

// Options are per-call overrides. Nil fields fall back to the policy
// defaults. Values are accepted as-is, without clamping to operator
// ranges; callers own their thresholds.
type Options struct {
	Threshold *float64
	CompareTo *int
}

// Service evaluates one detection policy per corpus: a shared
// statistics computation with a per-kind decision rule on top.
type Service struct {
	repos    map[domain.Kind]Repository
	embed    Embedder
	policies map[domain.Kind]Policy
	logger   *zap.Logger
}

// New creates a detection service over both corpora.
func New(
	anomaly, malicious Repository,
	embed Embedder,
	policies map[domain.Kind]Policy,
	logger *zap.Logger,
) *Service {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Service{
		repos: map[domain.Kind]Repository{
			domain.KindAnomaly:   anomaly,
			domain.KindMalicious: malicious,
		},
		embed:    embed,
		policies: policies,
		logger:   logger,
	}
}

// Evaluate runs one detection call: embed, query the corpus, compute
// stats, decide. Errors from the embedder or the store propagate so
// the caller can apply its own failure policy (the pipeline fails
// open; the detect endpoint reports the error).
func (s *Service) Evaluate(
	ctx context.Context, kind domain.Kind, text string, opts Options,
) (domain.Verdict, error) {
	repo, ok := s.repos[kind]
	if !ok {
		return domain.Verdict{}, fmt.Errorf("%w: %q", domain.ErrUnknownCorpus, kind)
	}

	policy := s.policies[kind]
	threshold := policy.Threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	k := policy.CompareTo
	if opts.CompareTo != nil {
		k = *opts.CompareTo
	}

	emb, err := s.embed.Embed(ctx, text)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("vectorize request: %w", err)
	}

	neighbors, err := repo.SearchKNN(ctx, emb.Embedding, k)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("query %s corpus: %w", kind, err)
	}

	qr := buildQueryResult(neighbors, threshold)
	verdict := decide(kind, qr)

	s.observe(kind, text, verdict)
	return verdict, nil
}

// observe emits the per-call observability event: one structured log
// line plus a counter increment. Side-channel only.
func (s *Service) observe(kind domain.Kind, text string, v domain.Verdict) {
	metrics.DetectionChecksTotal.WithLabelValues(string(kind), strconv.FormatBool(v.Flagged)).Inc()

	fields := []zap.Field{
		zap.String("corpus", string(kind)),
		zap.String("input", text),
		zap.Bool("flagged", v.Flagged),
		zap.Float64("confidence", v.Confidence),
		zap.String("risk_level", string(v.Risk)),
	}
	for key, val := range v.Stats.Flatten() {
		fields = append(fields, zap.String("stats."+key, val))
	}
	s.logger.Info("detection_evaluated", fields...)
}

// buildQueryResult filters the similar subset: any neighbor closer
// than the threshold counts as a similar record, for both corpora.
// Raw distances stay untouched so the stats cover the full top-K.
func buildQueryResult(neighbors []domain.Neighbor, threshold float64) domain.QueryResult {
	qr := domain.QueryResult{Neighbors: neighbors, Threshold: threshold}
	for _, n := range neighbors {
		if n.Distance < threshold {
			qr.Similar = append(qr.Similar, n)
		}
	}
	return qr
}

// decide applies the per-kind decision rule over the shared stats.
func decide(kind domain.Kind, qr domain.QueryResult) domain.Verdict {
	if len(qr.Neighbors) == 0 {
		return emptyCorpusVerdict(kind, qr.Threshold)
	}

	stats := computeStats(qr)

	var flagged bool
	var confidence float64
	switch kind {
	case domain.KindAnomaly:
		// Median is robust against a single close outlier: the
		// question is whether the request is generally unusual.
		stats.DetectionDistance = stats.MedianDistance
		stats.DetectionMetric = "median_distance"
		flagged = stats.MedianDistance > stats.Threshold
		confidence = 1.0 - stats.MedianDistance
	case domain.KindMalicious:
		// Minimum: any single close match to a known-bad pattern is
		// sufficient signal.
		stats.DetectionDistance = stats.MinDistance
		stats.DetectionMetric = "min_distance"
		flagged = stats.MinDistance < stats.Threshold
		confidence = stats.MinDistance
		if confidence < 0.01 {
			confidence = 0.01
		}
	}

	return domain.Verdict{
		Flagged:    flagged,
		Confidence: confidence,
		Reasons:    reasons(kind, flagged, confidence, stats.SimilarCount),
		Risk:       domain.RiskFromConfidence(confidence),
		Stats:      stats,
	}
}

// emptyCorpusVerdict fails toward caution on both sides: with no
// baseline an anomaly cannot be ruled out, and with no known-bad
// patterns nothing can be matched.
func emptyCorpusVerdict(kind domain.Kind, threshold float64) domain.Verdict {
	stats := domain.Stats{NoBaseline: true, Threshold: threshold}

	if kind == domain.KindAnomaly {
		return domain.Verdict{
			Flagged:    true,
			Confidence: 1.0,
			Reasons:    reasons(kind, true, 1.0, 0),
			Risk:       domain.RiskFromConfidence(1.0),
			Stats:      stats,
		}
	}
	return domain.Verdict{
		Flagged:    false,
		Confidence: 0.0,
		Risk:       domain.RiskFromConfidence(0.0),
		Stats:      stats,
	}
}

// computeStats derives the distance distribution over the full top-K.
func computeStats(qr domain.QueryResult) domain.Stats {
	ds := qr.Distances()

	similar := make([]domain.Entry, len(qr.Similar))
	for i, n := range qr.Similar {
		similar[i] = domain.Entry{Text: n.Record.Text, Timestamp: n.Record.Timestamp}
	}

	return domain.Stats{
		MedianDistance: median(ds),
		MeanDistance:   mean(ds),
		MinDistance:    minOf(ds),
		MaxDistance:    maxOf(ds),
		Threshold:      qr.Threshold,
		SimilarCount:   len(qr.Similar),
		Similar:        similar,
		Distances:      ds,
	}
}

// reasons generates the ordered explanation list. Conditions are
// checked in order and every applicable one is appended; the generic
// fallback only fires when no specific reason matched.
func reasons(kind domain.Kind, flagged bool, confidence float64, similarCount int) []string {
	if !flagged {
		return nil
	}

	var rs []string
	switch kind {
	case domain.KindAnomaly:
		if confidence > 0.8 {
			rs = append(rs, "request significantly differs from baseline patterns")
		}
		if similarCount < 3 {
			rs = append(rs, "very few similar requests found in baseline")
		}
		if len(rs) == 0 {
			rs = append(rs, "request appears unusual compared to baseline")
		}
	case domain.KindMalicious:
		if confidence > 0.8 {
			rs = append(rs, "request closely matches known malicious patterns")
		}
		if similarCount >= 3 {
			rs = append(rs, "multiple similar malicious requests found in baseline")
		}
		if len(rs) == 0 {
			rs = append(rs, "request appears similar to known malicious content")
		}
	}
	return rs
}

func median(ds []float64) float64 {
	sorted := make([]float64, len(ds))
	copy(sorted, ds)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(ds []float64) float64 {
	var sum float64
	for _, d := range ds {
		sum += d
	}
	return sum / float64(len(ds))
}

func minOf(ds []float64) float64 {
	m := ds[0]
	for _, d := range ds[1:] {
		if d < m {
			m = d
		}
	}
	return m
}

func maxOf(ds []float64) float64 {
	m := ds[0]
	for _, d := range ds[1:] {
		if d > m {
			m = d
		}
	}
	return m
}
