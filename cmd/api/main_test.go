package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/doctis-ai/doctis-mvp/engine/llm"
	"github.com/doctis-ai/doctis-mvp/engine/rag"
	"github.com/doctis-ai/doctis-mvp/pkg/metrics"
	"github.com/doctis-ai/doctis-mvp/pkg/resilience"
)

type stubEncoder struct{ vec []float32 }

func (s stubEncoder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = s.vec
	}
	return out, nil
}

func (s stubEncoder) Model() string { return "stub-embed" }

type stubProvider struct{ reply string }

func (p stubProvider) Name() string { return "stub" }

func (p stubProvider) Generate(context.Context, string, string) (string, error) {
	return p.reply, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadKnowledgeBaseEmptyDirStartsEmpty(t *testing.T) {
	kb, err := loadKnowledgeBase(context.Background(), t.TempDir(), stubEncoder{}, discardLogger())
	if err != nil {
		t.Fatalf("expected missing data to be non-fatal, got %v", err)
	}
	if kb.len() != 0 {
		t.Fatalf("expected empty index, got %d diseases", kb.len())
	}
	matches, err := kb.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches from empty index, got %d", len(matches))
	}
}

func TestTriageAnswersWithoutKnowledgeBase(t *testing.T) {
	logger := discardLogger()
	kb, err := loadKnowledgeBase(context.Background(), t.TempDir(), stubEncoder{vec: []float32{1, 0}}, logger)
	if err != nil {
		t.Fatal(err)
	}

	chain := llm.NewChain([]llm.Provider{stubProvider{reply: "Rest and drink fluids."}}, llm.ChainOpts{Logger: logger})
	svc := rag.New(stubEncoder{vec: []float32{1, 0}}, kb, chain, rag.Options{Logger: logger})

	reg := metrics.New()
	h := handleTriage(svc, resilience.NewLimiter(resilience.LimiterOpts{Rate: 10, Burst: 10}), logger, triageHooks{
		total:    reg.Counter("triage_total", "served"),
		rejected: reg.Counter("triage_rejected", "rejected"),
		limited:  reg.Counter("triage_limited", "limited"),
		duration: reg.Histogram("triage_seconds", "latency", nil),
	})

	body := strings.NewReader(`{"symptoms":"persistent fever and a dry cough for three days"}`)
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("POST", "/api/triage", body))

	if rec.Code != 200 {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp TriageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Matches) != 0 {
		t.Fatalf("expected no matches, got %+v", resp.Matches)
	}
	if resp.AIResponse != "Rest and drink fluids." {
		t.Fatalf("ai_response = %q", resp.AIResponse)
	}
}
