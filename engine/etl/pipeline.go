package etl

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/doctis-ai/doctis-mvp/engine/domain"
	"github.com/doctis-ai/doctis-mvp/pkg/fn"
)

// EmbedBatchSize is the max texts per encoder call.
const EmbedBatchSize = 64

// Encoder is the shared text encoder. One instance is constructed at process
// start and injected into both the build pipeline and the retrieval engine
// so index and query vectors come from the same model state.
type Encoder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Deps holds the external dependencies of the build pipeline.
type Deps struct {
	Encoder Encoder
	// Limiter paces encoder calls; nil means unpaced.
	Limiter *rate.Limiter
	// Retry overrides the encoder retry policy; zero value means defaults.
	Retry  fn.RetryOpts
	Logger *slog.Logger
}

// BuildResult is the output of a full knowledge-base build: the canonical
// records and their row-aligned embedding vectors.
type BuildResult struct {
	Records []domain.DiseaseRecord
	Vectors [][]float32
}

// Load is the stage that reads all source tables from the data directory.
var Load fn.Stage[string, Sources] = func(_ context.Context, dir string) fn.Result[Sources] {
	return fn.FromPair(LoadSources(dir))
}

// Build is the stage that merges sources into canonical records.
var Build fn.Stage[Sources, []domain.DiseaseRecord] = func(_ context.Context, src Sources) fn.Result[[]domain.DiseaseRecord] {
	return fn.FromPair(BuildRecords(src))
}

// NewEmbed creates the stage that encodes every record's embedding text in
// rate-limited batches.
func NewEmbed(deps Deps) fn.Stage[[]domain.DiseaseRecord, BuildResult] {
	retry := deps.Retry
	if retry.MaxAttempts == 0 {
		retry = fn.DefaultRetry
	}
	encode := fn.RetryStage(retry, func(ctx context.Context, texts []string) fn.Result[[][]float32] {
		return fn.FromPair(deps.Encoder.EmbedBatch(ctx, texts))
	})

	return func(ctx context.Context, records []domain.DiseaseRecord) fn.Result[BuildResult] {
		texts := fn.Map(records, func(r domain.DiseaseRecord) string { return r.EmbeddingText() })
		vectors := make([][]float32, 0, len(records))

		for i, batch := range fn.Chunk(texts, EmbedBatchSize) {
			if deps.Limiter != nil {
				if err := deps.Limiter.Wait(ctx); err != nil {
					return fn.Err[BuildResult](err)
				}
			}

			vecs, err := encode(ctx, batch).Unwrap()
			if err != nil {
				return fn.Err[BuildResult](fmt.Errorf("etl: embed batch at row %d: %w", i*EmbedBatchSize, err))
			}
			if len(vecs) != len(batch) {
				return fn.Errf[BuildResult]("etl: encoder returned %d vectors for %d texts", len(vecs), len(batch))
			}
			vectors = append(vectors, vecs...)
		}

		return fn.Ok(BuildResult{Records: records, Vectors: vectors})
	}
}

// NewPipeline composes load → build → embed with traced stages.
func NewPipeline(deps Deps) fn.Stage[string, BuildResult] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	loaded := fn.TracedStage("etl.load", Load)
	built := fn.Then(loaded, fn.TracedStage("etl.build", Build))
	counted := fn.Then(built, fn.TapStage(func(_ context.Context, records []domain.DiseaseRecord) {
		log.Debug("etl: sources merged", "diseases", len(records))
	}))
	return fn.Then(counted, fn.TracedStage("etl.embed", NewEmbed(deps)))
}

// Rebuild runs the full pipeline against dir and persists the cache.
// Persistence failures are non-fatal: the in-memory result is still usable
// for the current process lifetime.
func Rebuild(ctx context.Context, dir string, deps Deps) (BuildResult, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	result, err := NewPipeline(deps)(ctx, dir).Unwrap()
	if err != nil {
		return BuildResult{}, err
	}

	if err := WriteCache(dir, result.Records, result.Vectors, deps.Encoder.Model()); err != nil {
		log.Warn("etl: cache write failed, continuing in-memory", "error", err)
	} else {
		log.Info("etl: knowledge base built", "records", len(result.Records), "model", deps.Encoder.Model())
	}
	return result, nil
}

// LoadOrRebuild prefers the on-disk cache; a missing, unreadable, or
// misaligned cache triggers a full rebuild.
func LoadOrRebuild(ctx context.Context, dir string, deps Deps) (BuildResult, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	records, vectors, err := LoadCache(dir, deps.Encoder.Model())
	if err == nil {
		log.Info("etl: knowledge base loaded from cache", "records", len(records))
		return BuildResult{Records: records, Vectors: vectors}, nil
	}
	log.Warn("etl: cache unusable, rebuilding", "error", err)
	return Rebuild(ctx, dir, deps)
}
