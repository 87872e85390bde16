package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results. Corpora carries per-corpus
// record counts when the store is reachable.
type Report struct {
	Status  Status
	Checks  map[string]CheckResult
	Corpora map[string]int
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	corpora   []CorpusCounter
}

// New creates a Service. embedding can be nil.
func New(db DBPinger, embedding EmbeddingChecker, corpora ...CorpusCounter) *Service {
	return &Service{db: db, embedding: embedding, corpora: corpora}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	corpora := make(map[string]int)
	if checks["database"] == CheckOK {
		for _, c := range s.corpora {
			n, err := c.Count(ctx)
			if err != nil {
				checks["corpus_"+c.Name()] = CheckError
				continue
			}
			corpora[c.Name()] = n
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Corpora: corpora}
}
