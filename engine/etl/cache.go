package etl

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
)

// Cache artifact names inside the data directory.
const (
	KnowledgeBaseFile = "medical_knowledge_base.csv"
	EmbeddingsFile    = "embeddings_cache.json"
)

var kbHeader = []string{"disease", "all_symptoms", "description", "precautions"}

// embeddingsCache is the serialized form of the embedding index. Model and
// dims are recorded so a cache produced by a different encoder is rejected
// instead of silently mixing vector spaces.
type embeddingsCache struct {
	Model   string      `json:"model"`
	Dims    int         `json:"dims"`
	Vectors [][]float32 `json:"vectors"`
}

// WriteCache persists the canonical table and its embeddings so subsequent
// process starts skip re-encoding.
func WriteCache(dir string, records []domain.DiseaseRecord, vectors [][]float32, model string) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("etl: cache misaligned: %d records, %d vectors", len(records), len(vectors))
	}

	f, err := os.Create(filepath.Join(dir, KnowledgeBaseFile))
	if err != nil {
		return fmt.Errorf("etl: write knowledge base: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(kbHeader); err != nil {
		f.Close()
		return fmt.Errorf("etl: write header: %w", err)
	}
	for _, r := range records {
		if err := w.Write([]string{r.Disease, r.AllSymptoms, r.Description, r.Precautions}); err != nil {
			f.Close()
			return fmt.Errorf("etl: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("etl: flush knowledge base: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("etl: close knowledge base: %w", err)
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	data, err := json.Marshal(embeddingsCache{Model: model, Dims: dims, Vectors: vectors})
	if err != nil {
		return fmt.Errorf("etl: marshal embeddings: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, EmbeddingsFile), data, 0o644); err != nil {
		return fmt.Errorf("etl: write embeddings: %w", err)
	}
	return nil
}

// LoadCache reads both cache artifacts back. Any unreadable artifact or a
// row/vector count mismatch is an error; callers respond with a full
// rebuild, never a partial patch.
func LoadCache(dir, model string) ([]domain.DiseaseRecord, [][]float32, error) {
	f, err := os.Open(filepath.Join(dir, KnowledgeBaseFile))
	if err != nil {
		return nil, nil, fmt.Errorf("etl: open cached knowledge base: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("etl: read cached knowledge base: %w", err)
	}
	if len(rows) < 1 || len(rows[0]) != len(kbHeader) {
		return nil, nil, fmt.Errorf("etl: cached knowledge base malformed")
	}

	records := make([]domain.DiseaseRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(kbHeader) {
			return nil, nil, fmt.Errorf("etl: cached knowledge base row malformed")
		}
		records = append(records, domain.DiseaseRecord{
			Disease:     row[0],
			AllSymptoms: row[1],
			Description: row[2],
			Precautions: row[3],
		})
	}

	data, err := os.ReadFile(filepath.Join(dir, EmbeddingsFile))
	if err != nil {
		return nil, nil, fmt.Errorf("etl: read cached embeddings: %w", err)
	}
	var cache embeddingsCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, nil, fmt.Errorf("etl: unmarshal cached embeddings: %w", err)
	}
	if cache.Model != model {
		return nil, nil, fmt.Errorf("etl: cached embeddings built with model %q, want %q", cache.Model, model)
	}
	if len(cache.Vectors) != len(records) {
		return nil, nil, fmt.Errorf("etl: cache misaligned: %d records, %d vectors", len(records), len(cache.Vectors))
	}
	return records, cache.Vectors, nil
}
