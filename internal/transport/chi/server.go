package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/guardrail/internal/domain"
	"github.com/kailas-cloud/guardrail/internal/usecase/detect"
	healthuc "github.com/kailas-cloud/guardrail/internal/usecase/health"
	"github.com/kailas-cloud/guardrail/internal/usecase/pipeline"
	"github.com/kailas-cloud/guardrail/internal/version"
)

// Pipeline runs the full guardrail decision pipeline.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Detector evaluates one corpus directly, outside the pipeline.
type Detector interface {
	Evaluate(ctx context.Context, kind domain.Kind, text string, opts detect.Options) (domain.Verdict, error)
}

// Baseliner is the corpus management surface.
type Baseliner interface {
	Add(ctx context.Context, kind domain.Kind, entry domain.Entry) (int, error)
	BulkAdd(ctx context.Context, kind domain.Kind, entries []domain.Entry) (int, error)
	List(ctx context.Context, kind domain.Kind, before, after *time.Time) ([]domain.Entry, error)
	Clear(ctx context.Context, kind domain.Kind, before, after *time.Time) (int, error)
	Stats(ctx context.Context, kind domain.Kind) (domain.CorpusStats, error)
}

// HealthService aggregates component health.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

// Server holds the HTTP handlers for the guardrail API.
type Server struct {
	pipeline Pipeline
	detector Detector
	baseline Baseliner
	health   HealthService
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	pipeline Pipeline,
	detector Detector,
	baseline Baseliner,
	health HealthService,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline: pipeline,
		detector: detector,
		baseline: baseline,
		health:   health,
		logger:   logger,
	}
}

// Routes mounts all handlers on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.banner)
	r.Get("/health", s.getHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/chat", s.postChat)

	r.Route("/{corpus}", func(r chi.Router) {
		r.Post("/detect", s.postDetect)
		r.Route("/baseline", func(r chi.Router) {
			r.Get("/", s.getBaseline)
			r.Get("/stats", s.getBaselineStats)
			r.Post("/add", s.postBaselineAdd)
			r.Post("/upload", s.postBaselineUpload)
			r.Post("/clear", s.postBaselineClear)
		})
	})
}

// banner handles GET /.
func (s *Server) banner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "guardrail",
		"version": version.Version,
	})
}

// getHealth handles GET /health.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for name, res := range report.Checks {
		checks[name] = string(res)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Corpora: report.Corpora,
		Version: version.Version,
	})
}

// postChat handles POST /chat — the full pipeline.
func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "text is required")
		return
	}

	res, err := s.pipeline.Run(r.Context(), pipeline.Request{
		Text:               req.Text,
		AnomalyThreshold:   req.AnomalyThreshold,
		MaliciousThreshold: req.MaliciousThreshold,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:         res.Response,
		GuardrailsPassed: res.Passed,
		Malicious:        checkToDTO(res.Malicious),
		Anomaly:          checkToDTO(res.Anomaly),
	})
}

// postDetect handles POST /{corpus}/detect.
func (s *Server) postDetect(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.corpusParam(w, r)
	if !ok {
		return
	}

	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "text is required")
		return
	}

	verdict, err := s.detector.Evaluate(r.Context(), kind, req.Text, detect.Options{
		Threshold: req.Threshold,
		CompareTo: req.CompareTo,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	// Corpus size is advisory; a stats failure does not void the verdict.
	stats, err := s.baseline.Stats(r.Context(), kind)
	if err != nil {
		s.logger.Warn("baseline stats unavailable", zap.String("corpus", string(kind)), zap.Error(err))
		stats = domain.CorpusStats{Name: string(kind)}
	}

	writeJSON(w, http.StatusOK, DetectResponse{
		RequestID:     uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Result:        verdict,
		BaselineStats: stats,
	})
}

// postBaselineAdd handles POST /{corpus}/baseline/add.
func (s *Server) postBaselineAdd(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.corpusParam(w, r)
	if !ok {
		return
	}

	var req BaselineEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "text is required")
		return
	}

	added, err := s.baseline.Add(r.Context(), kind, domain.Entry{Text: req.Text, Timestamp: req.Timestamp})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BaselineMutationResponse{
		Message:      fmt.Sprintf("added %d record to %s baseline", added, kind),
		RecordsAdded: added,
		Status:       "success",
	})
}

// postBaselineUpload handles POST /{corpus}/baseline/upload.
func (s *Server) postBaselineUpload(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.corpusParam(w, r)
	if !ok {
		return
	}

	var req BaselineUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "records must not be empty")
		return
	}

	added, err := s.baseline.BulkAdd(r.Context(), kind, entriesFromDTO(req.Records))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BaselineMutationResponse{
		Message:      fmt.Sprintf("added %d records to %s baseline", added, kind),
		RecordsAdded: added,
		Status:       "success",
	})
}

// getBaseline handles GET /{corpus}/baseline?before=&after=.
func (s *Server) getBaseline(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.corpusParam(w, r)
	if !ok {
		return
	}

	before, after, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	entries, err := s.baseline.List(r.Context(), kind, before, after)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BaselineListResponse{
		Records: entriesToDTO(entries),
		Total:   len(entries),
	})
}

// postBaselineClear handles POST /{corpus}/baseline/clear?before=&after=.
func (s *Server) postBaselineClear(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.corpusParam(w, r)
	if !ok {
		return
	}

	before, after, err := rangeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	removed, err := s.baseline.Clear(r.Context(), kind, before, after)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BaselineMutationResponse{
		Message:        fmt.Sprintf("removed %d records from %s baseline", removed, kind),
		RecordsRemoved: removed,
		Status:         "success",
	})
}

// getBaselineStats handles GET /{corpus}/baseline/stats.
func (s *Server) getBaselineStats(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.corpusParam(w, r)
	if !ok {
		return
	}

	stats, err := s.baseline.Stats(r.Context(), kind)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BaselineStatsResponse{
		Corpus:       stats.Name,
		TotalRecords: stats.TotalRecords,
	})
}

// corpusParam parses and validates the {corpus} URL parameter.
func (s *Server) corpusParam(w http.ResponseWriter, r *http.Request) (domain.Kind, bool) {
	kind, err := domain.ParseKind(chi.URLParam(r, "corpus"))
	if err != nil {
		writeError(w, http.StatusNotFound, CodeCorpusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

// rangeParams parses optional before/after RFC3339 query parameters.
func rangeParams(r *http.Request) (before, after *time.Time, err error) {
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid before timestamp %q: %w", v, err)
		}
		before = &t
	}
	if v := r.URL.Query().Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid after timestamp %q: %w", v, err)
		}
		after = &t
	}
	return before, after, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// handleDomainError maps sentinel errors to HTTP responses.
func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownCorpus):
		writeError(w, http.StatusNotFound, CodeCorpusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "baseline store unavailable")
	case errors.Is(err, domain.ErrEmbeddingFailed):
		writeError(w, http.StatusBadGateway, CodeEmbeddingFailed, "embedding provider error")
	default:
		s.logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
	}
}
