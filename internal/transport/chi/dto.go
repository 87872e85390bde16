package chi

import (
	"time"

	"github.com/kailas-cloud/guardrail/internal/domain"
	"github.com/kailas-cloud/guardrail/internal/usecase/pipeline"
)

// ErrorCode identifies an error category in API responses.
type ErrorCode string

const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeCorpusNotFound   ErrorCode = "corpus_not_found"
	CodeStoreUnavailable ErrorCode = "store_unavailable"
	CodeEmbeddingFailed  ErrorCode = "embedding_failed"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ChatRequest is the pipeline entry point payload.
type ChatRequest struct {
	Text               string   `json:"text"`
	AnomalyThreshold   *float64 `json:"anomaly_threshold,omitempty"`
	MaliciousThreshold *float64 `json:"malicious_threshold,omitempty"`
}

// CheckDTO is one guardrail check outcome in the chat response.
type CheckDTO struct {
	domain.Verdict
	FailOpen   bool   `json:"fail_open,omitempty"`
	FailReason string `json:"fail_reason,omitempty"`
}

// ChatResponse is the pipeline result.
type ChatResponse struct {
	Response         string   `json:"response"`
	GuardrailsPassed bool     `json:"guardrails_passed"`
	Malicious        CheckDTO `json:"malicious"`
	Anomaly          CheckDTO `json:"anomaly"`
}

func checkToDTO(c pipeline.CheckOutcome) CheckDTO {
	return CheckDTO{Verdict: c.Verdict, FailOpen: c.FailOpen, FailReason: c.FailReason}
}

// DetectRequest is a standalone detection call against one corpus.
type DetectRequest struct {
	Text      string   `json:"text"`
	Threshold *float64 `json:"threshold,omitempty"`
	CompareTo *int     `json:"compare_to,omitempty"`
}

// DetectResponse wraps the verdict with request metadata and the
// corpus size at evaluation time.
type DetectResponse struct {
	RequestID     string             `json:"request_id"`
	Timestamp     time.Time          `json:"timestamp"`
	Result        domain.Verdict     `json:"result"`
	BaselineStats domain.CorpusStats `json:"baseline_stats"`
}

// BaselineEntryDTO is one record in add/upload/list payloads. A zero
// timestamp on input means "now".
type BaselineEntryDTO struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// BaselineUploadRequest is the bulk ingestion payload.
type BaselineUploadRequest struct {
	Records []BaselineEntryDTO `json:"records"`
}

// BaselineMutationResponse reports add/upload/clear outcomes.
type BaselineMutationResponse struct {
	Message        string `json:"message"`
	RecordsAdded   int    `json:"records_added,omitempty"`
	RecordsRemoved int    `json:"records_removed,omitempty"`
	Status         string `json:"status"`
}

// BaselineListResponse is the ranged read result, ascending by time.
type BaselineListResponse struct {
	Records []BaselineEntryDTO `json:"records"`
	Total   int                `json:"total"`
}

// BaselineStatsResponse reports corpus size.
type BaselineStatsResponse struct {
	Corpus       string `json:"corpus"`
	TotalRecords int    `json:"total_records"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Corpora map[string]int    `json:"corpora,omitempty"`
	Version string            `json:"version"`
}

func entriesToDTO(entries []domain.Entry) []BaselineEntryDTO {
	out := make([]BaselineEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = BaselineEntryDTO{Text: e.Text, Timestamp: e.Timestamp}
	}
	return out
}

func entriesFromDTO(dtos []BaselineEntryDTO) []domain.Entry {
	out := make([]domain.Entry, len(dtos))
	for i, d := range dtos {
		out[i] = domain.Entry{Text: d.Text, Timestamp: d.Timestamp}
	}
	return out
}
