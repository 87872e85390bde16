package sdk

import "time"

// ChatRequest runs the pipeline on Text; threshold overrides are
// optional.
type ChatRequest struct {
	Text               string   `json:"text"`
	AnomalyThreshold   *float64 `json:"anomaly_threshold,omitempty"`
	MaliciousThreshold *float64 `json:"malicious_threshold,omitempty"`
}

// Verdict is one guardrail decision.
type Verdict struct {
	Flagged    bool           `json:"flagged"`
	Confidence float64        `json:"confidence_score"`
	Reasons    []string       `json:"reasons,omitempty"`
	Risk       string         `json:"risk_level"`
	Stats      map[string]any `json:"stats,omitempty"`
}

// Check is a verdict plus the fail-open marker.
type Check struct {
	Verdict
	FailOpen   bool   `json:"fail_open,omitempty"`
	FailReason string `json:"fail_reason,omitempty"`
}

// ChatResponse is the pipeline result.
type ChatResponse struct {
	Response         string `json:"response"`
	GuardrailsPassed bool   `json:"guardrails_passed"`
	Malicious        Check  `json:"malicious"`
	Anomaly          Check  `json:"anomaly"`
}

// DetectRequest evaluates Text against one corpus.
type DetectRequest struct {
	Text      string   `json:"text"`
	Threshold *float64 `json:"threshold,omitempty"`
	CompareTo *int     `json:"compare_to,omitempty"`
}

// DetectResponse wraps the verdict with request metadata.
type DetectResponse struct {
	RequestID     string        `json:"request_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Result        Verdict       `json:"result"`
	BaselineStats BaselineStats `json:"baseline_stats"`
}

// BaselineEntry is one corpus record.
type BaselineEntry struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// BaselineMutation reports an add/upload/clear outcome.
type BaselineMutation struct {
	Message        string `json:"message"`
	RecordsAdded   int    `json:"records_added,omitempty"`
	RecordsRemoved int    `json:"records_removed,omitempty"`
	Status         string `json:"status"`
}

// BaselineList is a ranged read result.
type BaselineList struct {
	Records []BaselineEntry `json:"records"`
	Total   int             `json:"total"`
}

// BaselineStats reports corpus size.
type BaselineStats struct {
	Corpus       string `json:"corpus,omitempty"`
	Name         string `json:"name,omitempty"`
	TotalRecords int    `json:"total_records"`
}

// Health is the server health report.
type Health struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Corpora map[string]int    `json:"corpora,omitempty"`
	Version string            `json:"version"`
}
