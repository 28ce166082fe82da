// Package rag orchestrates a triage request: retrieval over the disease
// index, prompt assembly, and generation through the provider chain.
package rag

import (
	"context"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
	"github.com/doctis-ai/doctis-mvp/engine/graph"
	"github.com/doctis-ai/doctis-mvp/engine/llm"
	"github.com/doctis-ai/doctis-mvp/engine/semantic"
)

// DefaultCacheSize bounds the response cache.
const DefaultCacheSize = 100

// Encoder turns query text into an embedding. It must be the same encoder
// instance the index was built with.
type Encoder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever finds diseases matching a query embedding.
type Retriever interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]domain.RetrievalMatch, error)
}

// RelatedFinder adds graph context for the best match. Optional.
type RelatedFinder interface {
	RelatedDiseases(ctx context.Context, disease string, limit int) ([]graph.RelatedDisease, error)
}

type cacheKey struct {
	symptoms string
	context  string
	lang     string
}

// Service answers triage requests.
type Service struct {
	encoder   Encoder
	retriever Retriever
	chain     *llm.Chain
	related   RelatedFinder
	cache     *lru.Cache[cacheKey, string]
	topK      int
	log       *slog.Logger
}

// Options tunes optional Service behavior.
type Options struct {
	// TopK bounds retrieval matches; zero means semantic.DefaultTopK.
	TopK int
	// CacheSize bounds the response cache; zero means DefaultCacheSize.
	CacheSize int
	// Related enables graph enrichment when non-nil.
	Related RelatedFinder
	Logger  *slog.Logger
}

// New wires a triage service. The encoder and retriever must come from the
// same knowledge-base build so query and index vectors share a model.
func New(encoder Encoder, retriever Retriever, chain *llm.Chain, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = semantic.DefaultTopK
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	cache, _ := lru.New[cacheKey, string](opts.CacheSize)
	return &Service{
		encoder:   encoder,
		retriever: retriever,
		chain:     chain,
		related:   opts.Related,
		cache:     cache,
		topK:      opts.TopK,
		log:       log,
	}
}

// Triage retrieves matching diseases and generates advice. Retrieval is
// fail-soft: an encoder or search failure degrades to an empty match list
// and generation still runs with the no-match sentinel. The returned error
// is reserved for context cancellation.
func (s *Service) Triage(ctx context.Context, req domain.TriageRequest) (domain.TriageResult, error) {
	matches := s.retrieve(ctx, req.Symptoms)
	contextStr := FormatContext(matches)

	var related []graph.RelatedDisease
	if s.related != nil && len(matches) > 0 {
		var err error
		related, err = s.related.RelatedDiseases(ctx, matches[0].Disease, 3)
		if err != nil {
			s.log.Warn("rag: graph enrichment failed, skipping", "disease", matches[0].Disease, "error", err)
			related = nil
		}
	}

	key := cacheKey{symptoms: strings.TrimSpace(req.Symptoms), context: contextStr, lang: req.Lang}
	// Responses generated under a caller-supplied credential are never
	// cached or served from cache.
	if req.APIKey == "" {
		if cached, ok := s.cache.Get(key); ok {
			s.log.Debug("rag: response cache hit")
			return domain.TriageResult{Matches: matches, AIResponse: cached}, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return domain.TriageResult{}, err
	}

	chain := s.chain
	if req.APIKey != "" {
		chain = chain.WithKey(ctx, req.APIKey)
	}

	answer, err := chain.Generate(ctx, systemPrompt, buildUserPrompt(req, contextStr, related))
	if err != nil {
		// The chain already produced a degraded response body.
		s.log.Error("rag: generation failed on all providers", "error", err)
		return domain.TriageResult{Matches: matches, AIResponse: answer}, nil
	}

	if req.APIKey == "" {
		s.cache.Add(key, answer)
	}
	return domain.TriageResult{Matches: matches, AIResponse: answer}, nil
}

// retrieve encodes the symptoms and searches the index. Any failure returns
// an empty list.
func (s *Service) retrieve(ctx context.Context, symptoms string) []domain.RetrievalMatch {
	query := strings.TrimSpace(symptoms)
	if query == "" {
		return nil
	}

	vecs, err := s.encoder.EmbedBatch(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		s.log.Warn("rag: query encoding failed, returning no matches", "error", err)
		return nil
	}

	matches, err := s.retriever.Search(ctx, vecs[0], s.topK)
	if err != nil {
		s.log.Warn("rag: retrieval failed, returning no matches", "error", err)
		return nil
	}
	return matches
}
