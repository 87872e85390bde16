package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Distance is the raw cosine distance
// reported by the index (__vector_score), not a similarity.
type SearchEntry struct {
	Key      string
	Distance float64
	Fields   map[string]string
}
