package baseline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/guardrail/internal/db"
	"github.com/kailas-cloud/guardrail/internal/domain"
)

// store is the consumer interface for baseline persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index string) (int, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo is the durable record set for one corpus. Reads and per-record
// writes run concurrently; the full wipe (DropAll) takes the exclusive
// side of the lock so no writer's record is lost mid-wipe.
type Repo struct {
	store store
	kind  domain.Kind
	dim   int

	mu sync.RWMutex
}

// New creates a baseline repository for one corpus.
func New(s store, kind domain.Kind, dim int) *Repo {
	return &Repo{store: s, kind: kind, dim: dim}
}

// Name returns the corpus name.
func (r *Repo) Name() string { return string(r.kind) }

func (r *Repo) keyPrefix() string {
	return fmt.Sprintf("%s%s:", domain.KeyPrefix, r.kind)
}

func (r *Repo) recordKey(id string) string {
	return r.keyPrefix() + id
}

func (r *Repo) indexName() string {
	return fmt.Sprintf("%s%s:idx", domain.KeyPrefix, r.kind)
}

func (r *Repo) indexDefinition() *db.IndexDefinition {
	return &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.keyPrefix()},
		Fields: []db.IndexField{
			{Name: fieldTS, Type: db.IndexFieldNumeric},
			{
				Name:           fieldVector,
				Type:           db.IndexFieldVector,
				VectorAlgo:     db.VectorFlat,
				VectorDim:      r.dim,
				VectorDistance: db.DistanceCosine,
			},
		},
	}
}

// EnsureIndex creates the corpus FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	err := r.store.CreateIndex(ctx, r.indexDefinition())
	if err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w: %w", r.indexName(), domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Insert stores one record. Duplicate texts are valid baseline entries:
// they increase the density of that pattern.
func (r *Repo) Insert(ctx context.Context, rec domain.BaselineRecord) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := r.recordKey(rec.ID)
	if err := r.store.HSet(ctx, key, recordToFields(rec)); err != nil {
		return fmt.Errorf("insert %s: %w: %w", key, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// SearchKNN returns up to k nearest records by ascending cosine distance.
// A missing index counts as an empty corpus, not a store failure.
func (r *Repo) SearchKNN(ctx context.Context, vector []float32, k int) ([]domain.Neighbor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            k,
		ReturnFields: []string{fieldText, fieldTS, "__vector_score"},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("knn %s: %w: %w", r.Name(), domain.ErrStoreUnavailable, err)
	}

	neighbors := make([]domain.Neighbor, 0, len(res.Entries))
	for _, entry := range res.Entries {
		id := strings.TrimPrefix(entry.Key, r.keyPrefix())
		rec, err := recordFromFields(id, entry.Fields)
		if err != nil {
			continue
		}
		neighbors = append(neighbors, domain.Neighbor{Distance: entry.Distance, Record: rec})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	return neighbors, nil
}

// List returns records whose timestamp falls in the given range,
// ascending by timestamp. Nil bounds follow the clear semantics:
// before only → ts < before; after only → ts >= after; both →
// [after, before); none → everything.
func (r *Repo) List(ctx context.Context, before, after *time.Time) ([]domain.BaselineRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records, _, err := r.fetchRange(ctx, before, after)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	return records, nil
}

// DeleteRange removes records in the given range and returns how many
// were removed. An inverted range (after >= before) matches nothing.
func (r *Repo) DeleteRange(ctx context.Context, before, after *time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records, keys, err := r.fetchRange(ctx, before, after)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	if err := r.store.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("delete range %s: %w: %w", r.Name(), domain.ErrStoreUnavailable, err)
	}
	return len(records), nil
}

// DropAll wipes the corpus and recreates it empty, returning the prior
// record count. Exclusive: concurrent adds and queries wait until the
// drop-delete-recreate sequence completes.
func (r *Repo) DropAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.store.Scan(ctx, r.keyPrefix()+"*")
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w: %w", r.Name(), domain.ErrStoreUnavailable, err)
	}

	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return 0, fmt.Errorf("drop index %s: %w: %w", r.indexName(), domain.ErrStoreUnavailable, err)
	}

	if len(keys) > 0 {
		if err := r.store.Del(ctx, keys...); err != nil {
			return 0, fmt.Errorf("wipe %s: %w: %w", r.Name(), domain.ErrStoreUnavailable, err)
		}
	}

	if err := r.store.CreateIndex(ctx, r.indexDefinition()); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return 0, fmt.Errorf("recreate index %s: %w: %w", r.indexName(), domain.ErrStoreUnavailable, err)
	}

	return len(keys), nil
}

// Count returns the number of records in the corpus. A missing index
// counts as zero.
func (r *Repo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, err := r.store.SearchCount(ctx, r.indexName())
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s: %w: %w", r.Name(), domain.ErrStoreUnavailable, err)
	}
	return n, nil
}

// fetchRange scans the corpus and returns in-range records plus their
// store keys (parallel slices). Records with unparseable fields are
// skipped, matching the lenient read policy for operator surfaces.
func (r *Repo) fetchRange(ctx context.Context, before, after *time.Time) (
	[]domain.BaselineRecord, []string, error,
) {
	keys, err := r.store.Scan(ctx, r.keyPrefix()+"*")
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w: %w", r.Name(), domain.ErrStoreUnavailable, err)
	}
	if len(keys) == 0 {
		return nil, nil, nil
	}

	fieldMaps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w: %w", r.Name(), domain.ErrStoreUnavailable, err)
	}

	var records []domain.BaselineRecord
	var matched []string
	for i, fields := range fieldMaps {
		id := strings.TrimPrefix(keys[i], r.keyPrefix())
		rec, err := recordFromFields(id, fields)
		if err != nil {
			continue
		}
		if inRange(rec.Timestamp, before, after) {
			records = append(records, rec)
			matched = append(matched, keys[i])
		}
	}

	return records, matched, nil
}

// inRange applies the date-scope semantics shared by List and
// DeleteRange: before is exclusive, after is inclusive.
func inRange(ts time.Time, before, after *time.Time) bool {
	switch {
	case before != nil && after != nil:
		return !ts.Before(*after) && ts.Before(*before)
	case before != nil:
		return ts.Before(*before)
	case after != nil:
		return !ts.Before(*after)
	default:
		return true
	}
}
