package domain

import "fmt"

// KeyPrefix namespaces all keys this service writes to the store.
const KeyPrefix = "guardrail:"

// Kind selects a corpus and its detection policy.
type Kind string

const (
	// KindAnomaly is the normal-traffic baseline: distance from it is the signal.
	KindAnomaly Kind = "anomaly"
	// KindMalicious is the known-bad baseline: closeness to it is the signal.
	KindMalicious Kind = "malicious"
)

// ParseKind validates a corpus name from the transport layer.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAnomaly:
		return KindAnomaly, nil
	case KindMalicious:
		return KindMalicious, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCorpus, s)
	}
}

// Kinds lists both corpora in pipeline check order: malicious first.
func Kinds() []Kind {
	return []Kind{KindMalicious, KindAnomaly}
}
