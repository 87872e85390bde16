package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestStatsMarshalJSON_NoBaseline(t *testing.T) {
	s := Stats{NoBaseline: true, Threshold: 0.7}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m["reason"] != "no baseline data available" {
		t.Errorf("reason: got %v", m["reason"])
	}
	if m["threshold"] != 0.7 {
		t.Errorf("threshold: got %v", m["threshold"])
	}
	if _, ok := m["median_distance"]; ok {
		t.Error("no-baseline stats must not report fake zero distances")
	}
}

func TestStatsMarshalJSON_WithData(t *testing.T) {
	s := Stats{
		MedianDistance:    0.3,
		MeanDistance:      0.35,
		MinDistance:       0.1,
		MaxDistance:       0.6,
		Threshold:         0.7,
		SimilarCount:      2,
		Distances:         []float64{0.1, 0.3, 0.6},
		DetectionDistance: 0.3,
		DetectionMetric:   "median_distance",
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := string(data)

	for _, key := range []string{
		"median_distance", "mean_distance", "min_distance", "max_distance",
		"threshold", "similar_records_count", "distances", "detection_metric",
	} {
		if !strings.Contains(out, key) {
			t.Errorf("missing key %q in %s", key, out)
		}
	}
	if strings.Contains(out, "reason") {
		t.Errorf("populated stats must not carry the no-baseline reason: %s", out)
	}
}

func TestStatsFlatten_NoBaseline(t *testing.T) {
	m := Stats{NoBaseline: true, Threshold: 0.25}.Flatten()

	if m["no_baseline"] != "true" {
		t.Errorf("flatten: %v", m)
	}
	if _, ok := m["median_distance"]; ok {
		t.Error("no-baseline flatten must omit distance fields")
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("anomaly"); err != nil || k != KindAnomaly {
		t.Errorf("anomaly: %v %v", k, err)
	}
	if k, err := ParseKind("malicious"); err != nil || k != KindMalicious {
		t.Errorf("malicious: %v %v", k, err)
	}

	_, err := ParseKind("other")
	if !errors.Is(err, ErrUnknownCorpus) {
		t.Errorf("expected ErrUnknownCorpus, got %v", err)
	}
}

func TestKinds_MaliciousFirst(t *testing.T) {
	ks := Kinds()
	if len(ks) != 2 || ks[0] != KindMalicious || ks[1] != KindAnomaly {
		t.Errorf("kinds: %v", ks)
	}
}
