package health

import "context"

// DBPinger checks store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// CorpusCounter reports the record count of one corpus.
type CorpusCounter interface {
	Name() string
	Count(ctx context.Context) (int, error)
}
