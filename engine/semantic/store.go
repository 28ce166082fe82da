package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
)

// VectorStore is the sole owner of all Qdrant operations. It is the
// alternative retrieval backend for deployments where the disease table
// outgrows an in-process index.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// NewStore creates a VectorStore connected to Qdrant at the given gRPC address.
func NewStore(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// DeleteCollection deletes the collection. Used before a full re-ingest.
func (v *VectorStore) DeleteCollection(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", v.collection, err)
	}
	return nil
}

// UpsertRecords mirrors the canonical disease table into Qdrant. Point IDs
// derive from the disease name so re-ingesting the same table overwrites in
// place instead of duplicating points.
func (v *VectorStore) UpsertRecords(ctx context.Context, records []domain.DiseaseRecord, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("semantic: upsert misaligned: %d records, %d vectors", len(records), len(vectors))
	}
	points := make([]VectorRecord, len(records))
	for i, r := range records {
		points[i] = VectorRecord{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(r.Disease)).String(),
			Embedding: vectors[i],
			Payload: map[string]any{
				"disease":     r.Disease,
				"symptoms":    r.AllSymptoms,
				"description": r.Description,
				"precautions": r.Precautions,
			},
		}
	}
	return v.Upsert(ctx, points)
}

// Upsert stores vector records into Qdrant.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*pb.Value, len(r.Payload))
		for k, val := range r.Payload {
			switch tv := val.(type) {
			case string:
				payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
			case int:
				payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
			case float64:
				payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
			case bool:
				payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
			default:
				payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
			}
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(records), err)
	}
	return nil
}

// Search performs k-NN similarity search against Qdrant and applies the same
// relevance threshold as the in-memory index.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]domain.RetrievalMatch, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	threshold := float32(RelevanceThreshold)
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	matches := make([]domain.RetrievalMatch, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		m := domain.RetrievalMatch{Score: float64(r.GetScore())}
		for k, val := range r.GetPayload() {
			s := val.GetStringValue()
			switch k {
			case "disease":
				m.Disease = s
			case "symptoms":
				m.Symptoms = s
			case "description":
				m.Description = s
			case "precautions":
				m.Precautions = s
			}
		}
		matches[i] = m
	}
	return matches, nil
}
