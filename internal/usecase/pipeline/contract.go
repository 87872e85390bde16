package pipeline

import (
	"context"

	"github.com/kailas-cloud/guardrail/internal/domain"
	"github.com/kailas-cloud/guardrail/internal/usecase/detect"
)

// Detector evaluates one corpus against the request text.
type Detector interface {
	Evaluate(ctx context.Context, kind domain.Kind, text string, opts detect.Options) (domain.Verdict, error)
}

// Generator is the downstream response port, invoked only on pass.
type Generator interface {
	Generate(ctx context.Context, text string) (domain.GenerationResult, error)
}
