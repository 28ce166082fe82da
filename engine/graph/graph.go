package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
	"github.com/doctis-ai/doctis-mvp/pkg/fn"
)

// GraphStore owns all Neo4j operations over the disease graph. Nodes are
// Disease and Symptom; edges are Disease -HAS_SYMPTOM-> Symptom.
type GraphStore struct {
	opener SessionOpener
}

// New creates a GraphStore over a Neo4j driver.
func New(driver neo4j.DriverWithContext) *GraphStore {
	return &GraphStore{opener: driverOpener{driver: driver}}
}

// NewWithOpener creates a GraphStore with a custom session opener.
func NewWithOpener(opener SessionOpener) *GraphStore {
	return &GraphStore{opener: opener}
}

// LoadRecords upserts the canonical disease table into the graph in a single
// transaction. MERGE keeps reloads idempotent.
func (g *GraphStore) LoadRecords(ctx context.Context, records []domain.DiseaseRecord) error {
	if len(records) == 0 {
		return nil
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		for _, r := range records {
			cypher := `MERGE (d:Disease {name: $name})
			           SET d.description = $description, d.precautions = $precautions`
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"name":        r.Disease,
				"description": r.Description,
				"precautions": r.Precautions,
			}); err != nil {
				return nil, err
			}

			for _, symptom := range SplitSymptoms(r.AllSymptoms) {
				cypher = `MERGE (s:Symptom {name: $symptom})
				          WITH s
				          MATCH (d:Disease {name: $disease})
				          MERGE (d)-[:HAS_SYMPTOM]->(s)`
				if _, err := tx.Run(ctx, cypher, map[string]any{
					"symptom": symptom,
					"disease": r.Disease,
				}); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: load %d diseases: %w", len(records), err)
	}
	return nil
}

// RelatedDiseases returns diseases sharing symptoms with the named one,
// ordered by how many symptoms they share.
func (g *GraphStore) RelatedDiseases(ctx context.Context, disease string, limit int) ([]RelatedDisease, error) {
	if limit <= 0 {
		limit = 5
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (d:Disease {name: $name})-[:HAS_SYMPTOM]->(s:Symptom)<-[:HAS_SYMPTOM]-(other:Disease)
	           WHERE other.name <> $name
	           RETURN other.name AS name, count(s) AS shared
	           ORDER BY shared DESC, name
	           LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"name": disease, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("graph: related diseases for %q: %w", disease, err)
	}

	var related []RelatedDisease
	for result.Next(ctx) {
		rec := result.Record()
		name, _ := rec.Get("name")
		shared, _ := rec.Get("shared")
		rd := RelatedDisease{}
		if s, ok := name.(string); ok {
			rd.Name = s
		}
		if n, ok := shared.(int64); ok {
			rd.SharedSymptoms = int(n)
		}
		related = append(related, rd)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("graph: related diseases for %q: %w", disease, err)
	}
	return related, nil
}

// SymptomCount reports how many distinct symptom nodes exist.
func (g *GraphStore) SymptomCount(ctx context.Context) (int, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (s:Symptom) RETURN count(s) AS n`, nil)
	if err != nil {
		return 0, fmt.Errorf("graph: symptom count: %w", err)
	}
	if result.Next(ctx) {
		if v, ok := result.Record().Get("n"); ok {
			if n, ok := v.(int64); ok {
				return int(n), nil
			}
		}
	}
	return 0, result.Err()
}

// SplitSymptoms breaks an aggregated symptom string into distinct trimmed
// entries, dropping blanks and the unspecified sentinel.
func SplitSymptoms(all string) []string {
	trimmed := fn.FilterMap(strings.Split(all, ","), func(p string) (string, bool) {
		s := strings.TrimSpace(p)
		return s, s != "" && s != domain.Unspecified
	})
	return fn.Unique(trimmed)
}
