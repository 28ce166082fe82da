package semantic

import (
	"fmt"
	"math"
	"sort"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
)

// RelevanceThreshold is the minimum cosine similarity for a disease to be
// considered a match. Hits below it are discarded rather than padded in.
const RelevanceThreshold = 0.25

// DefaultTopK bounds the number of matches returned per query.
const DefaultTopK = 3

// Index is the in-memory retrieval index: the canonical disease table plus
// row-aligned embedding vectors. It is immutable after construction; hot
// reloads swap the whole value behind the caller's lock.
type Index struct {
	records []domain.DiseaseRecord
	vectors [][]float32
}

// NewIndex builds an index over records and their embeddings. The two slices
// must be row-aligned; a mismatch means the build or cache is corrupt.
func NewIndex(records []domain.DiseaseRecord, vectors [][]float32) (*Index, error) {
	if len(records) != len(vectors) {
		return nil, fmt.Errorf("semantic: %d records but %d vectors", len(records), len(vectors))
	}
	return &Index{records: records, vectors: vectors}, nil
}

// Len reports the number of indexed diseases.
func (ix *Index) Len() int { return len(ix.records) }

// Records returns the indexed disease table in row order.
func (ix *Index) Records() []domain.DiseaseRecord { return ix.records }

// Search scores every indexed disease against the query vector and returns
// up to topK matches at or above RelevanceThreshold, best first. Ties keep
// table row order. An empty result is a valid answer, not an error.
func (ix *Index) Search(query []float32, topK int) []domain.RetrievalMatch {
	if topK <= 0 {
		topK = DefaultTopK
	}

	type scored struct {
		row   int
		score float64
	}
	hits := make([]scored, 0, len(ix.records))
	for i, vec := range ix.vectors {
		s := Cosine(query, vec)
		if s >= RelevanceThreshold {
			hits = append(hits, scored{row: i, score: s})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	matches := make([]domain.RetrievalMatch, len(hits))
	for i, h := range hits {
		r := ix.records[h.row]
		matches[i] = domain.RetrievalMatch{
			Disease:     r.Disease,
			Symptoms:    r.AllSymptoms,
			Description: r.Description,
			Precautions: r.Precautions,
			Score:       h.score,
		}
	}
	return matches
}

// Cosine computes cosine similarity between two vectors. Mismatched lengths
// and zero vectors score 0 so a bad query degrades to "no match" instead of
// failing the request.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
