package domain

import (
	"encoding/json"
	"strconv"
)

// RiskLevel bands a verdict's confidence for consumers that do not
// want to interpret raw scores.
type RiskLevel string

const (
	// RiskLow is the default band.
	RiskLow RiskLevel = "low"
	// RiskMedium is confidence > 0.6.
	RiskMedium RiskLevel = "medium"
	// RiskHigh is confidence > 0.8.
	RiskHigh RiskLevel = "high"
)

// RiskFromConfidence applies the shared banding used by both policies.
func RiskFromConfidence(confidence float64) RiskLevel {
	switch {
	case confidence > 0.8:
		return RiskHigh
	case confidence > 0.6:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Stats aggregates the distance distribution behind one detection call.
// When the corpus held no records, NoBaseline is set and the distance
// fields are meaningless; they must not be read as real zeros.
type Stats struct {
	NoBaseline bool

	MedianDistance float64
	MeanDistance   float64
	MinDistance    float64
	MaxDistance    float64

	Threshold    float64
	SimilarCount int
	Similar      []Entry
	Distances    []float64

	// DetectionDistance/DetectionMetric record which statistic drove
	// the decision (median for anomaly, min for malicious).
	DetectionDistance float64
	DetectionMetric   string
}

// MarshalJSON keeps the empty-corpus case unambiguous: no fake zero
// distances, just an explicit reason plus the threshold that was used.
func (s Stats) MarshalJSON() ([]byte, error) {
	if s.NoBaseline {
		return json.Marshal(map[string]any{
			"reason":    "no baseline data available",
			"threshold": s.Threshold,
		})
	}
	type alias struct {
		MedianDistance    float64   `json:"median_distance"`
		MeanDistance      float64   `json:"mean_distance"`
		MinDistance       float64   `json:"min_distance"`
		MaxDistance       float64   `json:"max_distance"`
		Threshold         float64   `json:"threshold"`
		SimilarCount      int       `json:"similar_records_count"`
		Similar           []Entry   `json:"similar_records,omitempty"`
		Distances         []float64 `json:"distances"`
		DetectionDistance float64   `json:"detection_distance"`
		DetectionMetric   string    `json:"detection_metric"`
	}
	return json.Marshal(alias{
		MedianDistance:    s.MedianDistance,
		MeanDistance:      s.MeanDistance,
		MinDistance:       s.MinDistance,
		MaxDistance:       s.MaxDistance,
		Threshold:         s.Threshold,
		SimilarCount:      s.SimilarCount,
		Similar:           s.Similar,
		Distances:         s.Distances,
		DetectionDistance: s.DetectionDistance,
		DetectionMetric:   s.DetectionMetric,
	})
}

// Flatten renders the stats as a flat key-value map for observability
// events (one event per detection call, §observability side-channel).
func (s Stats) Flatten() map[string]string {
	m := make(map[string]string, 8)
	m["threshold"] = formatFloat(s.Threshold)
	if s.NoBaseline {
		m["no_baseline"] = "true"
		return m
	}
	m["median_distance"] = formatFloat(s.MedianDistance)
	m["mean_distance"] = formatFloat(s.MeanDistance)
	m["min_distance"] = formatFloat(s.MinDistance)
	m["max_distance"] = formatFloat(s.MaxDistance)
	m["similar_records_count"] = strconv.Itoa(s.SimilarCount)
	m["detection_distance"] = formatFloat(s.DetectionDistance)
	m["detection_metric"] = s.DetectionMetric
	return m
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Verdict is the outcome of one detection policy evaluation for one
// corpus against one request. Produced once, never mutated.
type Verdict struct {
	Flagged    bool      `json:"flagged"`
	Confidence float64   `json:"confidence_score"`
	Reasons    []string  `json:"reasons"`
	Risk       RiskLevel `json:"risk_level"`
	Stats      Stats     `json:"stats"`
}
