package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/unihelp/cli/internal/vectorstore"
)

// Store is an in-process vector index. It keeps every entry in memory and
// ranks by exact cosine similarity, which makes it the reference backend for
// tests and small corpora.
type Store struct {
	mu        sync.RWMutex
	dimension int
	entries   map[uuid.UUID]*record
	nextSeq   uint64
}

// record wraps an entry with its insertion sequence and precomputed norm.
// The sequence survives overwrites so that ties keep ranking the entry that
// was indexed first.
type record struct {
	entry vectorstore.Entry
	seq   uint64
	norm  float64
}

var _ vectorstore.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[uuid.UUID]*record)}
}

// Init records the embedding dimensionality. Re-initializing with a
// different dimension fails once entries exist.
func (s *Store) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.entries) > 0 {
		return fmt.Errorf("%w: store holds %d-dimensional vectors, requested %d",
			vectorstore.ErrDimensionMismatch, s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

// Upsert writes entries, overwriting any entry with the same ID while
// keeping its original insertion sequence.
func (s *Store) Upsert(_ context.Context, entries []vectorstore.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if s.dimension != 0 && len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: entry %s has %d dimensions, store expects %d",
				vectorstore.ErrDimensionMismatch, e.ID, len(e.Vector), s.dimension)
		}
		seq := s.nextSeq
		if prev, ok := s.entries[e.ID]; ok {
			seq = prev.seq
		} else {
			s.nextSeq++
		}
		s.entries[e.ID] = &record{entry: e, seq: seq, norm: norm(e.Vector)}
	}
	return nil
}

// Search returns up to k entries ranked by cosine similarity descending.
// Equal scores rank the earlier-indexed entry first.
func (s *Store) Search(_ context.Context, vector []float32, k int) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if k <= 0 || len(s.entries) == 0 {
		return nil, nil
	}

	queryNorm := norm(vector)
	type scored struct {
		hit vectorstore.Hit
		seq uint64
	}
	results := make([]scored, 0, len(s.entries))
	for _, rec := range s.entries {
		results = append(results, scored{
			hit: vectorstore.Hit{Entry: rec.entry, Score: cosine(vector, rec.entry.Vector, queryNorm, rec.norm)},
			seq: rec.seq,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].hit.Score != results[j].hit.Score {
			return results[i].hit.Score > results[j].hit.Score
		}
		return results[i].seq < results[j].seq
	})
	if k > len(results) {
		k = len(results)
	}
	hits := make([]vectorstore.Hit, k)
	for i := range hits {
		hits[i] = results[i].hit
	}
	return hits, nil
}

// DeleteDocument removes every entry of one document.
func (s *Store) DeleteDocument(_ context.Context, document string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.entries {
		if rec.entry.Document == document {
			delete(s.entries, id)
		}
	}
	return nil
}

// Prune removes entries of a document whose ordinal is >= keep.
func (s *Store) Prune(_ context.Context, document string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.entries {
		if rec.entry.Document == document && rec.entry.Ordinal >= keep {
			delete(s.entries, id)
		}
	}
	return nil
}

// Sources lists the distinct documents currently indexed, sorted.
func (s *Store) Sources(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, rec := range s.entries {
		seen[rec.entry.Document] = struct{}{}
	}
	sources := make([]string, 0, len(seen))
	for doc := range seen {
		sources = append(sources, doc)
	}
	sort.Strings(sources)
	return sources, nil
}

// DocumentHash returns the hash recorded for a document, or "" when the
// document is not indexed.
func (s *Store) DocumentHash(_ context.Context, document string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.entries {
		if rec.entry.Document == document {
			return rec.entry.DocHash, nil
		}
	}
	return "", nil
}

// Count returns the number of entries.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Clear removes all entries.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[uuid.UUID]*record)
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
