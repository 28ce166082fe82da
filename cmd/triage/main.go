// Command triage runs a single triage query against the cached knowledge
// base from the command line. Developer tool; the HTTP API is cmd/api.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
	"github.com/doctis-ai/doctis-mvp/engine/etl"
	"github.com/doctis-ai/doctis-mvp/engine/llm"
	"github.com/doctis-ai/doctis-mvp/engine/rag"
	"github.com/doctis-ai/doctis-mvp/engine/semantic"
	"github.com/doctis-ai/doctis-mvp/pkg/gemini"
	"github.com/doctis-ai/doctis-mvp/pkg/ollama"
)

func main() {
	var (
		dataDir     = flag.String("dir", "./data", "directory holding the knowledge base cache")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel  = flag.String("embed-model", "nomic-embed-text", "embedding model name")
		chatModel   = flag.String("chat-model", "mistral", "local chat model name")
		age         = flag.Int("age", 0, "patient age")
		gender      = flag.String("gender", "", "patient gender")
		history     = flag.String("history", "", "relevant medical history")
		lang        = flag.String("lang", "en", "answer language code")
		topK        = flag.Int("top-k", semantic.DefaultTopK, "max matches to retrieve")
		matchesOnly = flag.Bool("matches-only", false, "print retrieval matches without generating advice")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	symptoms := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if symptoms == "" {
		fmt.Fprintln(os.Stderr, "usage: triage [flags] <symptom description>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx := context.Background()
	encoder := ollama.New(*ollamaURL, *embedModel)

	result, err := etl.LoadOrRebuild(ctx, *dataDir, etl.Deps{Encoder: encoder, Logger: logger})
	if err != nil {
		if !errors.Is(err, etl.ErrNoData) {
			fmt.Fprintf(os.Stderr, "knowledge base: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "warning: no knowledge base found, answering without matches")
		result = etl.BuildResult{}
	}
	index, err := semantic.NewIndex(result.Records, result.Vectors)
	if err != nil {
		fmt.Fprintf(os.Stderr, "index: %v\n", err)
		os.Exit(1)
	}

	req := domain.TriageRequest{
		Symptoms: symptoms,
		Age:      *age,
		Gender:   *gender,
		History:  *history,
		Lang:     *lang,
	}
	if err := domain.ValidateTriageRequest(req); err != nil {
		fmt.Fprintf(os.Stderr, "invalid input: %v\n", err)
		os.Exit(2)
	}

	if *matchesOnly {
		vecs, err := encoder.EmbedBatch(ctx, []string{symptoms})
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
		printMatches(index.Search(vecs[0], *topK))
		return
	}

	chain := llm.NewChain(buildProviders(ctx, *ollamaURL, *chatModel), llm.ChainOpts{Logger: logger})
	svc := rag.New(encoder, indexRetriever{index}, chain, rag.Options{TopK: *topK, Logger: logger})

	out, err := svc.Triage(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "triage: %v\n", err)
		os.Exit(1)
	}

	printMatches(out.Matches)
	fmt.Println()
	fmt.Println(out.AIResponse)
}

// buildProviders prefers Gemini when a key is present, with the local model
// as fallback.
func buildProviders(ctx context.Context, ollamaURL, chatModel string) []llm.Provider {
	var providers []llm.Provider
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		model := envOr("GEMINI_MODEL", "gemini-2.0-flash")
		client, err := gemini.New(ctx, key, model, "")
		if err == nil {
			providers = append(providers, llm.NewGemini("gemini-primary", client))
		}
	}
	return append(providers, llm.NewOllama(ollama.New(ollamaURL, chatModel)))
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

type indexRetriever struct {
	index *semantic.Index
}

func (r indexRetriever) Search(_ context.Context, embedding []float32, topK int) ([]domain.RetrievalMatch, error) {
	return r.index.Search(embedding, topK), nil
}

func printMatches(matches []domain.RetrievalMatch) {
	if len(matches) == 0 {
		fmt.Println("no matching conditions found")
		return
	}
	for _, m := range matches {
		fmt.Printf("%-30s %.2f  %s\n", m.Disease, m.Score, m.Symptoms)
	}
}
