// Command ingest builds the medical knowledge base: it merges the source
// CSVs, embeds every disease, persists the cache, and optionally mirrors the
// result into Qdrant and Neo4j and announces the build over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"

	"github.com/doctis-ai/doctis-mvp/engine/etl"
	"github.com/doctis-ai/doctis-mvp/engine/graph"
	"github.com/doctis-ai/doctis-mvp/engine/semantic"
	"github.com/doctis-ai/doctis-mvp/pkg/gemini"
	"github.com/doctis-ai/doctis-mvp/pkg/metrics"
	"github.com/doctis-ai/doctis-mvp/pkg/natsutil"
	"github.com/doctis-ai/doctis-mvp/pkg/ollama"
)

var met = metrics.New()

var (
	mRecordsBuilt = met.Counter("doctis_ingest_records_total", "Disease records built")
	mVectors      = met.Counter("doctis_ingest_embeddings_total", "Embedding vectors generated")
	mQdrantWrites = met.Counter("doctis_ingest_qdrant_writes_total", "Vector store writes")
	mNeo4jLoads   = met.Counter("doctis_ingest_neo4j_loads_total", "Graph loads performed")
	mBuildDur     = met.Histogram("doctis_ingest_build_duration_seconds", "Full build time", nil)
)

func main() {
	var (
		dataDir     = flag.String("dir", "./data", "directory holding the source CSV files")
		embedKind   = flag.String("embed", "ollama", "embedding backend: ollama or gemini")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel  = flag.String("model", "nomic-embed-text", "embedding model name")
		embedRPS    = flag.Float64("embed-rps", 4, "max embedding calls per second")
		qdrantAddr  = flag.String("qdrant", "", "Qdrant gRPC address (empty disables the mirror)")
		collection  = flag.String("collection", "doctis", "Qdrant collection name")
		neo4jURL    = flag.String("neo4j", "", "Neo4j bolt URL (empty disables the graph load)")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "password", "Neo4j password")
		natsURL     = flag.String("nats", "", "NATS URL for build events (empty disables)")
		metricsPort = flag.Int("metrics-port", 9091, "metrics listen port")
		force       = flag.Bool("force", false, "rebuild even when a usable cache exists")
	)
	flag.Parse()

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	met.CollectRuntime("doctis_ingest", 15*time.Second)
	met.ServeAsync(*metricsPort)

	if err := run(ctx, log, buildFlags{
		dataDir:    *dataDir,
		embedKind:  *embedKind,
		ollamaURL:  *ollamaURL,
		embedModel: *embedModel,
		embedRPS:   *embedRPS,
		qdrantAddr: *qdrantAddr,
		collection: *collection,
		neo4jURL:   *neo4jURL,
		neo4jUser:  *neo4jUser,
		neo4jPass:  *neo4jPass,
		natsURL:    *natsURL,
		force:      *force,
	}); err != nil {
		log.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

type buildFlags struct {
	dataDir    string
	embedKind  string
	ollamaURL  string
	embedModel string
	embedRPS   float64
	qdrantAddr string
	collection string
	neo4jURL   string
	neo4jUser  string
	neo4jPass  string
	natsURL    string
	force      bool
}

func run(ctx context.Context, log *slog.Logger, f buildFlags) error {
	encoder, err := buildEncoder(ctx, f)
	if err != nil {
		return err
	}
	log.Info("using embedding backend", "kind", f.embedKind, "model", encoder.Model())

	deps := etl.Deps{
		Encoder: encoder,
		Limiter: rate.NewLimiter(rate.Limit(f.embedRPS), 1),
		Logger:  log,
	}

	start := time.Now()
	var result etl.BuildResult
	if f.force {
		result, err = etl.Rebuild(ctx, f.dataDir, deps)
	} else {
		result, err = etl.LoadOrRebuild(ctx, f.dataDir, deps)
	}
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	mBuildDur.Since(start)
	mRecordsBuilt.Add(int64(len(result.Records)))
	mVectors.Add(int64(len(result.Vectors)))
	log.Info("knowledge base ready", "diseases", len(result.Records), "took", time.Since(start))

	if f.qdrantAddr != "" {
		if err := mirrorToQdrant(ctx, f, result); err != nil {
			return err
		}
		log.Info("mirrored into Qdrant", "collection", f.collection)
	}

	if f.neo4jURL != "" {
		if err := loadGraph(ctx, f, result); err != nil {
			return err
		}
		log.Info("disease graph loaded", "diseases", len(result.Records))
	}

	if f.natsURL != "" {
		nc, err := nats.Connect(f.natsURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		ev := etl.BuildEvent{Records: len(result.Records), Model: encoder.Model(), BuiltAt: time.Now().UTC()}
		if err := natsutil.Publish(ctx, nc, etl.BuildSubject, ev); err != nil {
			return fmt.Errorf("publish build event: %w", err)
		}
		log.Info("build event published", "subject", etl.BuildSubject)
	}

	return nil
}

func buildEncoder(ctx context.Context, f buildFlags) (etl.Encoder, error) {
	switch f.embedKind {
	case "gemini":
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("-embed=gemini requires GOOGLE_API_KEY")
		}
		client, err := gemini.New(ctx, key, "", f.embedModel)
		if err != nil {
			return nil, fmt.Errorf("gemini encoder: %w", err)
		}
		return client, nil
	case "ollama":
		return ollama.New(f.ollamaURL, f.embedModel), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", f.embedKind)
	}
}

func mirrorToQdrant(ctx context.Context, f buildFlags, result etl.BuildResult) error {
	vs, err := semantic.NewStore(f.qdrantAddr, f.collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vs.Close()

	dims := 0
	if len(result.Vectors) > 0 {
		dims = len(result.Vectors[0])
	}
	if err := vs.EnsureCollection(ctx, dims); err != nil {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}
	if err := vs.UpsertRecords(ctx, result.Records, result.Vectors); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	mQdrantWrites.Add(int64(len(result.Records)))
	return nil
}

func loadGraph(ctx context.Context, f buildFlags, result etl.BuildResult) error {
	driver, err := neo4j.NewDriverWithContext(f.neo4jURL, neo4j.BasicAuth(f.neo4jUser, f.neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j verify: %w", err)
	}

	if err := graph.New(driver).LoadRecords(ctx, result.Records); err != nil {
		return err
	}
	mNeo4jLoads.Inc()
	return nil
}
