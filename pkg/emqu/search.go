package emqu

import (
	"math"
	"sort"
)

// CosineSimilarity computes the cosine similarity between two vectors of equal length.
// Accumulation happens in float64; the result is cast to float32.
// A zero-norm vector (or any NaN along the way) scores negative infinity so it sorts last.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(-1))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	return cosine(dotProduct, math.Sqrt(normA), math.Sqrt(normB))
}

func cosine(dot, normA, normB float64) float32 {
	if normA == 0 || normB == 0 {
		return float32(math.Inf(-1))
	}
	score := dot / (normA * normB)
	switch {
	case math.IsNaN(score):
		return float32(math.Inf(-1))
	case score > 1:
		return 1
	case score < -1:
		return -1
	}
	return float32(score)
}

// NewIndex validates that all records share one dimension and precomputes their norms
func NewIndex(records []Record) (*Index, error) {
	idx := &Index{Records: records, norms: make([]float64, len(records))}
	if len(records) == 0 {
		return idx, nil
	}

	idx.Dimension = len(records[0].Vector)
	for i := range records {
		if len(records[i].Vector) != idx.Dimension {
			return nil, Errorf(ErrDimensionMismatch, "index",
				"record %d has %d dimensions, expected %d", i, len(records[i].Vector), idx.Dimension)
		}
		idx.norms[i] = norm(records[i].Vector)
	}
	return idx, nil
}

// Search scores every record against the query and returns the topK best, highest first.
// Equal scores keep store order.
func (idx *Index) Search(query []float32, topK int) ([]Result, error) {
	if topK < 0 {
		return nil, Errorf(ErrInvalidArgument, "search", "top-k must not be negative, got %d", topK)
	}
	if len(idx.Records) > 0 && len(query) != idx.Dimension {
		return nil, Errorf(ErrDimensionMismatch, "search",
			"query has %d dimensions, store has %d", len(query), idx.Dimension)
	}

	queryNorm := norm(query)
	results := make([]Result, 0, len(idx.Records))
	for i, rec := range idx.Records {
		results = append(results, Result{
			Score: cosine(dot(query, rec.Vector), queryNorm, idx.norms[i]),
			Label: rec.Label,
			Index: i,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Rank is the one-shot form of NewIndex followed by Search
func Rank(query []float32, records []Record, topK int) ([]Result, error) {
	idx, err := NewIndex(records)
	if err != nil {
		return nil, err
	}
	return idx.Search(query, topK)
}

// FilterMinScore drops results scoring below minScore. Input order is kept.
func FilterMinScore(results []Result, minScore float32) []Result {
	out := results[:0:0]
	for _, r := range results {
		if r.Score >= minScore {
			out = append(out, r)
		}
	}
	return out
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
