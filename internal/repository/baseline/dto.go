package baseline

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kailas-cloud/guardrail/internal/domain"
)

// Hash field names. The vector is stored as little-endian float32 bytes
// (the format FT.SEARCH expects), the timestamp as unix nanoseconds so
// records round-trip exactly.
const (
	fieldText   = "__text"
	fieldTS     = "__ts"
	fieldVector = "__vector"
)

func recordToFields(rec domain.BaselineRecord) map[string]string {
	return map[string]string{
		fieldText:   rec.Text,
		fieldTS:     strconv.FormatInt(rec.Timestamp.UnixNano(), 10),
		fieldVector: string(vectorToBytes(rec.Vector)),
	}
}

func recordFromFields(id string, fields map[string]string) (domain.BaselineRecord, error) {
	ns, err := strconv.ParseInt(fields[fieldTS], 10, 64)
	if err != nil {
		return domain.BaselineRecord{}, fmt.Errorf("parse timestamp for %s: %w", id, err)
	}

	rec := domain.BaselineRecord{
		ID:        id,
		Text:      fields[fieldText],
		Timestamp: time.Unix(0, ns).UTC(),
	}

	if raw, ok := fields[fieldVector]; ok {
		vec, err := bytesToVector([]byte(raw))
		if err != nil {
			return domain.BaselineRecord{}, fmt.Errorf("parse vector for %s: %w", id, err)
		}
		rec.Vector = vec
	}

	return rec, nil
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of 4)", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
