package domain

import "errors"

var (
	// ErrStoreUnavailable signals that the baseline store could not serve the
	// operation. Callers must treat it distinctly from an empty corpus.
	ErrStoreUnavailable = errors.New("baseline store unavailable")
	// ErrEmbeddingFailed signals an embedding provider failure for one text.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrGenerationFailed signals a response generation failure.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrUnknownCorpus signals a corpus name outside {anomaly, malicious}.
	ErrUnknownCorpus = errors.New("unknown corpus")
	// ErrInvalidRequest signals a malformed management or detection request.
	ErrInvalidRequest = errors.New("invalid request")
)
