package memory

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
)

// inMemDimensions is the fixed dimensionality of the hashing embedder.
const inMemDimensions = 256

// InMemoryStore is a self-contained Store built on token-hashing embeddings
// and cosine similarity. It backs tests and local runs where no external
// embedding service is configured; the production deployment points Store at
// the real vector service instead.
type InMemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string][]storedRecord
}

type storedRecord struct {
	rec    Record
	vector []float64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{namespaces: make(map[string][]storedRecord)}
}

// Embed hashes lower-cased tokens into a fixed-dimension frequency vector,
// L2-normalized so cosine similarity reduces to a dot product.
func (s *InMemoryStore) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, inMemDimensions)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%inMemDimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// Search ranks records in the namespace by cosine similarity to the query.
func (s *InMemoryStore) Search(ctx context.Context, namespace string, vector []float64, k int, filter map[string]string) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, stored := range s.namespaces[namespace] {
		if !matchesFilter(stored.rec, filter) {
			continue
		}
		results = append(results, SearchResult{
			Record: stored.rec,
			Score:  dot(vector, stored.vector),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Save embeds and stores a record, replacing any record with the same ID.
func (s *InMemoryStore) Save(ctx context.Context, namespace string, rec Record) error {
	vec, err := s.Embed(ctx, rec.Content)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.namespaces[namespace]
	for i, stored := range records {
		if stored.rec.ID == rec.ID {
			records[i] = storedRecord{rec: rec, vector: vec}
			return nil
		}
	}
	s.namespaces[namespace] = append(records, storedRecord{rec: rec, vector: vec})
	return nil
}

// Count returns the number of records in a namespace.
func (s *InMemoryStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

func matchesFilter(rec Record, filter map[string]string) bool {
	for k, v := range filter {
		if rec.Metadata[k] != v {
			return false
		}
	}
	return true
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
