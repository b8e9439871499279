package vectorstore

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dshills/pagecontext-mcp/pkg/types"
)

// Record pairs a chunk with its embedding vector
type Record struct {
	Chunk  types.Chunk
	Vector []float32
}

// Store is an immutable snapshot of one page's records. It is safe for
// concurrent queries.
type Store struct {
	pageKey   string
	records   []Record
	norms     []float64
	dimension int
	createdAt time.Time
}

// Build copies records into a new store. All vectors must share one
// non-zero length.
func Build(pageKey string, records []Record) (*Store, error) {
	return build(pageKey, records, time.Now())
}

func build(pageKey string, records []Record, createdAt time.Time) (*Store, error) {
	if pageKey == "" {
		return nil, fmt.Errorf("%w: page key cannot be empty", types.ErrInvalidInput)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records for page %q", types.ErrInvalidInput, pageKey)
	}

	dim := len(records[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("%w: record 0 has an empty vector", types.ErrInvalidInput)
	}

	s := &Store{
		pageKey:   pageKey,
		records:   make([]Record, len(records)),
		norms:     make([]float64, len(records)),
		dimension: dim,
		createdAt: createdAt,
	}

	for i, r := range records {
		if len(r.Vector) != dim {
			return nil, &types.DimensionMismatchError{PageKey: pageKey, Want: dim, Got: len(r.Vector)}
		}
		if err := r.Chunk.Validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d of page %q: %w", types.ErrInvalidInput, i, pageKey, err)
		}
		vec := make([]float32, dim)
		copy(vec, r.Vector)
		s.records[i] = Record{Chunk: r.Chunk, Vector: vec}
		s.norms[i] = norm(vec)
	}

	return s, nil
}

// PageKey returns the page the store belongs to
func (s *Store) PageKey() string {
	return s.pageKey
}

// Dimension returns the vector length shared by all records
func (s *Store) Dimension() int {
	return s.dimension
}

// Len returns the number of records
func (s *Store) Len() int {
	return len(s.records)
}

// CreatedAt returns when the vectors were computed
func (s *Store) CreatedAt() time.Time {
	return s.createdAt
}

// candidate is a record index with its similarity score
type candidate struct {
	idx   int
	score float64
}

// Query returns the k records most similar to vec by cosine similarity,
// best first. Ties go to the lower sequence index. Records with a zero
// vector never match, and a zero query matches nothing.
func (s *Store) Query(vec []float32, k int) ([]types.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", types.ErrInvalidInput, k)
	}
	if len(vec) != s.dimension {
		return nil, &types.DimensionMismatchError{PageKey: s.pageKey, Want: s.dimension, Got: len(vec), Query: true}
	}

	results := make([]types.SearchResult, 0, min(k, len(s.records)))

	qnorm := norm(vec)
	if qnorm == 0 {
		return results, nil
	}

	candidates := make([]candidate, 0, len(s.records))
	for i, r := range s.records {
		if s.norms[i] == 0 {
			continue
		}
		candidates = append(candidates, candidate{
			idx:   i,
			score: dot(vec, r.Vector) / (qnorm * s.norms[i]),
		})
	}

	s.sortCandidates(candidates)

	for i, c := range candidates {
		if i == k {
			break
		}
		results = append(results, types.SearchResult{
			Chunk: s.records[c.idx].Chunk,
			Rank:  i + 1,
			Score: clamp(c.score),
		})
	}

	return results, nil
}

// sortCandidates orders by descending score, then ascending sequence index
func (s *Store) sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return s.records[candidates[i].idx].Chunk.SequenceIndex < s.records[candidates[j].idx].Chunk.SequenceIndex
	})
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// clamp keeps rounding error from pushing a score outside [-1, 1]
func clamp(score float64) float64 {
	return math.Max(-1, math.Min(1, score))
}
