// Package main implements the Doctis triage API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
	"github.com/doctis-ai/doctis-mvp/engine/etl"
	"github.com/doctis-ai/doctis-mvp/engine/graph"
	"github.com/doctis-ai/doctis-mvp/engine/llm"
	"github.com/doctis-ai/doctis-mvp/engine/rag"
	"github.com/doctis-ai/doctis-mvp/engine/semantic"
	"github.com/doctis-ai/doctis-mvp/pkg/gemini"
	"github.com/doctis-ai/doctis-mvp/pkg/metrics"
	"github.com/doctis-ai/doctis-mvp/pkg/mid"
	"github.com/doctis-ai/doctis-mvp/pkg/natsutil"
	"github.com/doctis-ai/doctis-mvp/pkg/ollama"
	"github.com/doctis-ai/doctis-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port    string
	DataDir string
	TopK    int

	EmbedProvider string // ollama or gemini
	OllamaURL     string
	EmbedModel    string
	LocalModel    string

	GoogleAPIKey       string
	GeminiModel        string
	GeminiFallback     string
	GeminiEmbedModel   string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string
	OpenAIFallback     string

	VectorBackend string // memory or qdrant
	QdrantURL     string
	Collection    string

	Neo4jURL  string
	Neo4jUser string
	Neo4jPass string

	NATSURL    string
	CORSOrigin string
	RateLimit  float64
	RateBurst  int
}

func loadConfig() Config {
	return Config{
		Port:    envOr("PORT", "8080"),
		DataDir: envOr("DATA_DIR", "./data"),
		TopK:    envIntOr("TOP_K", semantic.DefaultTopK),

		EmbedProvider: envOr("EMBED_PROVIDER", "ollama"),
		OllamaURL:     envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:    envOr("EMBED_MODEL", "nomic-embed-text"),
		LocalModel:    envOr("LOCAL_LLM_MODEL", "mistral"),

		GoogleAPIKey:     os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:      envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiFallback:   envOr("GEMINI_FALLBACK_MODEL", "gemini-1.5-flash"),
		GeminiEmbedModel: envOr("GEMINI_EMBED_MODEL", "text-embedding-004"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:      envOr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIFallback:   envOr("OPENAI_FALLBACK_MODEL", "gpt-4o"),

		VectorBackend: envOr("VECTOR_BACKEND", "memory"),
		QdrantURL:     envOr("QDRANT_URL", "localhost:6334"),
		Collection:    envOr("QDRANT_COLLECTION", "doctis"),

		Neo4jURL:  os.Getenv("NEO4J_URL"),
		Neo4jUser: envOr("NEO4J_USER", "neo4j"),
		Neo4jPass: envOr("NEO4J_PASS", "password"),

		NATSURL:    os.Getenv("NATS_URL"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		RateLimit:  envFloatOr("RATE_LIMIT_RPS", 10),
		RateBurst:  envIntOr("RATE_LIMIT_BURST", 20),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Shared encoder: one instance for build-time and query-time vectors ---
	encoder, err := buildEncoder(ctx, cfg)
	if err != nil {
		return err
	}

	// --- Knowledge base ---
	kb, err := loadKnowledgeBase(ctx, cfg.DataDir, encoder, logger)
	if err != nil {
		return err
	}

	var retriever rag.Retriever = kb
	if cfg.VectorBackend == "qdrant" {
		store, err := semantic.NewStore(cfg.QdrantURL, cfg.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer store.Close()
		retriever = store
	}

	// --- Generation chain ---
	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}
	chain := llm.NewChain(providers, llm.ChainOpts{Logger: logger})

	// --- Optional graph enrichment ---
	opts := rag.Options{TopK: cfg.TopK, Logger: logger}
	if cfg.Neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(ctx)
		opts.Related = graph.New(driver)
	}

	ragSvc := rag.New(encoder, retriever, chain, opts)

	// --- Metrics ---
	reg := metrics.New()
	reg.CollectRuntime("doctis_api", 15*time.Second)
	triageTotal := reg.Counter("doctis_triage_requests_total", "Triage requests served")
	triageRejected := reg.Counter("doctis_triage_rejected_total", "Triage requests rejected by validation")
	triageLimited := reg.Counter("doctis_triage_rate_limited_total", "Triage requests rejected by the rate limiter")
	triageDuration := reg.Histogram("doctis_triage_duration_seconds", "Triage latency", nil)
	kbReloads := reg.Counter("doctis_kb_reloads_total", "Knowledge base hot reloads")

	// --- Hot reload on build events ---
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()

		sub, err := natsutil.Subscribe(nc, etl.BuildSubject, func(ctx context.Context, ev etl.BuildEvent) {
			logger.Info("kb build event received, reloading", "records", ev.Records, "model", ev.Model)
			records, vectors, err := etl.LoadCache(cfg.DataDir, encoder.Model())
			if err != nil {
				logger.Error("kb reload: cache unreadable", "error", err)
				return
			}
			fresh, err := semantic.NewIndex(records, vectors)
			if err != nil {
				logger.Error("kb reload: misaligned cache", "error", err)
				return
			}
			kb.swap(fresh)
			kbReloads.Inc()
		})
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer sub.Unsubscribe()
	}

	limiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.RateLimit, Burst: cfg.RateBurst})

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(kb, len(providers)))
	mux.HandleFunc("GET /api/pathologies", handlePathologies(kb))
	mux.Handle("GET /metrics", reg.Handler())
	mux.HandleFunc("POST /api/triage", handleTriage(ragSvc, limiter, logger, triageHooks{
		total:    triageTotal,
		rejected: triageRejected,
		limited:  triageLimited,
		duration: triageDuration,
	}))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.SecurityHeaders(),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("doctis-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "diseases", kb.len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// loadKnowledgeBase loads or rebuilds the disease index. A data directory
// with no source tables is not fatal: the server starts with an empty index
// and answers generation-only until an ingest run announces a build.
func loadKnowledgeBase(ctx context.Context, dataDir string, encoder etl.Encoder, logger *slog.Logger) (*knowledgeBase, error) {
	result, err := etl.LoadOrRebuild(ctx, dataDir, etl.Deps{Encoder: encoder, Logger: logger})
	if err != nil {
		if !errors.Is(err, etl.ErrNoData) {
			return nil, fmt.Errorf("knowledge base: %w", err)
		}
		logger.Warn("knowledge base unavailable, starting generation-only", "dir", dataDir)
		result = etl.BuildResult{}
	}

	index, err := semantic.NewIndex(result.Records, result.Vectors)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	return &knowledgeBase{index: index}, nil
}

// buildEncoder picks the embedding backend. Both implement etl.Encoder.
func buildEncoder(ctx context.Context, cfg Config) (etl.Encoder, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("EMBED_PROVIDER=gemini requires GOOGLE_API_KEY")
		}
		client, err := gemini.New(ctx, cfg.GoogleAPIKey, cfg.GeminiModel, cfg.GeminiEmbedModel)
		if err != nil {
			return nil, fmt.Errorf("gemini encoder: %w", err)
		}
		return client, nil
	case "ollama":
		return ollama.New(cfg.OllamaURL, cfg.EmbedModel), nil
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider)
	}
}

// buildProviders assembles the fallback order: Gemini primary and fallback,
// then OpenAI-compatible primary and fallback, then local Ollama.
func buildProviders(ctx context.Context, cfg Config) ([]llm.Provider, error) {
	var providers []llm.Provider

	if cfg.GoogleAPIKey != "" {
		for _, m := range []struct{ name, model string }{
			{"gemini-primary", cfg.GeminiModel},
			{"gemini-fallback", cfg.GeminiFallback},
		} {
			client, err := gemini.New(ctx, cfg.GoogleAPIKey, m.model, cfg.GeminiEmbedModel)
			if err != nil {
				return nil, fmt.Errorf("gemini provider %s: %w", m.name, err)
			}
			providers = append(providers, llm.NewGemini(m.name, client))
		}
	}

	if cfg.OpenAIAPIKey != "" {
		providers = append(providers,
			llm.NewOpenAI("openai-primary", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel),
			llm.NewOpenAI("openai-fallback", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIFallback),
		)
	}

	providers = append(providers, llm.NewOllama(ollama.New(cfg.OllamaURL, cfg.LocalModel)))
	return providers, nil
}

// knowledgeBase is the hot-swappable retrieval index.
type knowledgeBase struct {
	mu    sync.RWMutex
	index *semantic.Index
}

func (k *knowledgeBase) swap(fresh *semantic.Index) {
	k.mu.Lock()
	k.index = fresh
	k.mu.Unlock()
}

func (k *knowledgeBase) len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.index.Len()
}

func (k *knowledgeBase) records() []domain.DiseaseRecord {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.index.Records()
}

// Search implements rag.Retriever over the in-memory index.
func (k *knowledgeBase) Search(_ context.Context, embedding []float32, topK int) ([]domain.RetrievalMatch, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.index.Search(embedding, topK), nil
}

// --- Handlers ---

func handleHealth(kb *knowledgeBase, providerCount int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"diseases":  kb.len(),
			"providers": providerCount,
		})
	}
}

func handlePathologies(kb *knowledgeBase) http.HandlerFunc {
	type pathology struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		records := kb.records()
		out := make([]pathology, len(records))
		for i, r := range records {
			out[i] = pathology{Name: r.Disease, Description: r.Description}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":       len(out),
			"pathologies": out,
		})
	}
}

// TriageRequest is the JSON body for POST /api/triage.
type TriageRequest struct {
	Symptoms string `json:"symptoms"`
	Age      int    `json:"age,omitempty"`
	Gender   string `json:"gender,omitempty"`
	History  string `json:"history,omitempty"`
	Lang     string `json:"lang,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// TriageResponse is the JSON response for POST /api/triage.
type TriageResponse struct {
	Matches    []domain.RetrievalMatch `json:"matches"`
	AIResponse string                  `json:"ai_response"`
}

type triageHooks struct {
	total    *metrics.Counter
	rejected *metrics.Counter
	limited  *metrics.Counter
	duration *metrics.Histogram
}

func handleTriage(svc *rag.Service, limiter *resilience.Limiter, logger *slog.Logger, hooks triageHooks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			hooks.limited.Inc()
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
			return
		}

		var req TriageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		dreq := domain.TriageRequest{
			Symptoms: req.Symptoms,
			Age:      req.Age,
			Gender:   req.Gender,
			History:  req.History,
			Lang:     req.Lang,
			APIKey:   req.APIKey,
		}
		if err := domain.ValidateTriageRequest(dreq); err != nil {
			hooks.rejected.Inc()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		start := time.Now()
		result, err := svc.Triage(r.Context(), dreq)
		hooks.duration.Since(start)
		if err != nil {
			logger.Error("triage failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		hooks.total.Inc()

		matches := result.Matches
		if matches == nil {
			matches = []domain.RetrievalMatch{}
		}
		writeJSON(w, http.StatusOK, TriageResponse{Matches: matches, AIResponse: result.AIResponse})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
