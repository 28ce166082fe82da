package etl

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/doctis-ai/doctis-mvp/pkg/fn"
)

// fakeEncoder produces deterministic two-dimensional vectors.
type fakeEncoder struct {
	calls int
	fail  bool
}

func (f *fakeEncoder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("encoder offline")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeEncoder) Model() string { return "fake-encoder" }

const wideCSV = "Disease,Symptom 1,Symptom 2\nFlu,fever,cough\nMigraine,head pain,nan\n"
const descCSV = "Disease,Description\nFlu,A viral infection.\n"

func TestRebuild_FullPipeline(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, WideSymptomsFile, wideCSV)
	writeFile(t, dir, DescriptionFile, descCSV)

	enc := &fakeEncoder{}
	result, err := Rebuild(context.Background(), dir, Deps{Encoder: enc, Logger: slog.Default()})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if len(result.Records) != 2 || len(result.Vectors) != 2 {
		t.Fatalf("got %d records, %d vectors", len(result.Records), len(result.Vectors))
	}
	if result.Records[0].AllSymptoms != "fever, cough" {
		t.Errorf("all_symptoms = %q", result.Records[0].AllSymptoms)
	}

	// The cache must now satisfy the round-trip property.
	records, vectors, err := LoadCache(dir, "fake-encoder")
	if err != nil {
		t.Fatalf("cache not readable after rebuild: %v", err)
	}
	if len(records) != len(result.Records) || len(vectors) != len(result.Vectors) {
		t.Error("cache does not match freshly built result")
	}
	for i := range records {
		if records[i].Disease != result.Records[i].Disease {
			t.Errorf("cached disease %d = %q, want %q", i, records[i].Disease, result.Records[i].Disease)
		}
	}
}

func TestLoadOrRebuild_PrefersCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, WideSymptomsFile, wideCSV)

	enc := &fakeEncoder{}
	if _, err := Rebuild(context.Background(), dir, Deps{Encoder: enc}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	callsAfterBuild := enc.calls

	if _, err := LoadOrRebuild(context.Background(), dir, Deps{Encoder: enc}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if enc.calls != callsAfterBuild {
		t.Error("cache hit should not re-encode")
	}
}

func TestLoadOrRebuild_RebuildsWhenCacheMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, WideSymptomsFile, wideCSV)

	enc := &fakeEncoder{}
	result, err := LoadOrRebuild(context.Background(), dir, Deps{Encoder: enc})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if enc.calls == 0 {
		t.Error("expected encoder to run on cold start")
	}
	if len(result.Records) != 2 {
		t.Errorf("got %d records", len(result.Records))
	}
}

func TestRebuild_NoSources(t *testing.T) {
	_, err := Rebuild(context.Background(), t.TempDir(), Deps{Encoder: &fakeEncoder{}})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}

func TestNewEmbed_EncoderFailurePropagates(t *testing.T) {
	enc := &fakeEncoder{fail: true}
	stage := NewEmbed(Deps{Encoder: enc, Retry: fn.RetryOpts{MaxAttempts: 1}})
	_, err := stage(context.Background(), testRecords).Unwrap()
	if err == nil || !strings.Contains(err.Error(), "embed batch") {
		t.Errorf("expected embed batch error, got %v", err)
	}
}
