// Package domain holds the core types of the triage engine: the canonical
// disease record produced by the ETL, the query-time request/response shapes,
// and the validation rules applied at the API boundary.
package domain

import "strings"

// Unspecified is the sentinel written into any canonical field that no
// source table could fill. Downstream prompt formatting relies on it never
// being empty.
const Unspecified = "unspecified"

// NoMatchFound is the retrieved-context sentinel handed to the generation
// layer when semantic search returned nothing usable.
const NoMatchFound = "no match found in the medical knowledge base"

// DiseaseRecord is one row of the canonical knowledge base. Disease is the
// join key across all source tables and is expected to be unique after the
// merge; duplicates are a data-quality defect upstream, not detected here.
type DiseaseRecord struct {
	Disease     string `json:"disease"`
	AllSymptoms string `json:"all_symptoms"`
	Description string `json:"description"`
	Precautions string `json:"precautions"`
}

// EmbeddingText is the encoder input for this record. It is derived, never
// persisted as its own column.
func (r DiseaseRecord) EmbeddingText() string {
	return strings.TrimSpace(r.Disease + " " + r.AllSymptoms + " " + r.Description)
}

// RetrievalMatch is a canonical record plus its cosine similarity against
// the query. Score is in [-1,1], practically [0,1] for the encoders used.
type RetrievalMatch struct {
	Disease     string  `json:"disease"`
	Symptoms    string  `json:"symptoms"`
	Description string  `json:"description"`
	Precautions string  `json:"precautions"`
	Score       float64 `json:"score"`
}

// TriageRequest is the query-time API boundary input.
type TriageRequest struct {
	Symptoms string `json:"symptoms"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
	History  string `json:"history,omitempty"`
	Lang     string `json:"lang,omitempty"`
	// APIKey optionally overrides the primary provider credential for this
	// request only. It never reaches shared state.
	APIKey string `json:"api_key,omitempty"`
}

// TriageResult is what the core returns to route handlers.
type TriageResult struct {
	Matches    []RetrievalMatch `json:"matches"`
	AIResponse string           `json:"ai_response"`
}
