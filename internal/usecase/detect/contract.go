package detect

import (
	"context"

	"github.com/kailas-cloud/guardrail/internal/domain"
)

// Repository is the nearest-neighbor view of one corpus.
type Repository interface {
	SearchKNN(ctx context.Context, vector []float32, k int) ([]domain.Neighbor, error)
}

// Embedder vectorizes the request text before the KNN lookup.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
