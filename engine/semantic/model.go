package semantic

// VectorRecord is a single point to store in the vector backend.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // disease, symptoms, description, precautions
}
