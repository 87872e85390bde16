package domain

import "time"

// BaselineRecord is one embedded reference entry in a corpus.
// Immutable after storage; removed only by an explicit clear.
type BaselineRecord struct {
	ID        string
	Vector    []float32
	Text      string
	Timestamp time.Time
}

// Entry is the management-surface view of a record: what the operator
// uploaded and when. Vectors stay inside the store.
type Entry struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Neighbor is one KNN hit: a stored record and its cosine distance
// from the query vector.
type Neighbor struct {
	Distance float64
	Record   BaselineRecord
}

// QueryResult holds the top-K nearest neighbors by ascending cosine
// distance, plus the subset under the similarity threshold. Raw
// distances are always populated for the full top-K so callers can
// compute statistics over the unfiltered set.
type QueryResult struct {
	Neighbors []Neighbor
	Similar   []Neighbor
	Threshold float64
}

// Distances returns the raw distance list in neighbor order.
func (q QueryResult) Distances() []float64 {
	ds := make([]float64, len(q.Neighbors))
	for i, n := range q.Neighbors {
		ds[i] = n.Distance
	}
	return ds
}

// CorpusStats summarizes a corpus for the management surface.
type CorpusStats struct {
	TotalRecords int    `json:"total_records"`
	Name         string `json:"name"`
}
