package baseline

import (
	"context"
	"time"

	"github.com/kailas-cloud/guardrail/internal/domain"
)

// Repository is the persistence contract for one corpus.
type Repository interface {
	Name() string
	Insert(ctx context.Context, rec domain.BaselineRecord) error
	List(ctx context.Context, before, after *time.Time) ([]domain.BaselineRecord, error)
	DeleteRange(ctx context.Context, before, after *time.Time) (int, error)
	DropAll(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

// Embedder vectorizes entries before storage.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
