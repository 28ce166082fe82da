package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("doctis_triage_requests_total", "Triage requests served")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Fatalf("expected 5, got %d", c.Value())
	}
	if r.Counter("doctis_triage_requests_total", "") != c {
		t.Fatal("same name should return the same counter")
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("doctis_kb_diseases", "Diseases in the loaded knowledge base")
	g.Set(41)
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 42 {
		t.Fatalf("expected 42, got %d", g.Value())
	}
}

func TestGaugeFloat(t *testing.T) {
	g := New().Gauge("doctis_top_score", "")
	g.SetFloat(0.25)
	if g.FloatValue() != 0.25 {
		t.Fatalf("expected 0.25, got %f", g.FloatValue())
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := New().Histogram("doctis_triage_duration_seconds", "", []float64{0.1, 0.5, 1.0})
	for _, v := range []float64{0.05, 0.3, 0.8, 2.0} {
		h.Observe(v)
	}

	buckets, counts, sum, count := h.snapshot()
	if count != 4 || len(buckets) != 3 {
		t.Fatalf("unexpected shape: %d observations, %d buckets", count, len(buckets))
	}
	for i, want := range []uint64{1, 1, 1} {
		if counts[i] != want {
			t.Fatalf("bucket %g: expected %d, got %d", buckets[i], want, counts[i])
		}
	}
	if want := 0.05 + 0.3 + 0.8 + 2.0; sum != want {
		t.Fatalf("expected sum %f, got %f", want, sum)
	}
}

func TestHistogramSince(t *testing.T) {
	h := New().Histogram("doctis_embed_duration_seconds", "", nil)
	h.Since(time.Now().Add(-50 * time.Millisecond))
	if _, _, _, count := h.snapshot(); count != 1 {
		t.Fatal("expected one observation")
	}
}

func TestWithLabels(t *testing.T) {
	got := WithLabels("doctis_llm_calls_total", "provider", "gemini-primary", "outcome", "ok")
	want := `doctis_llm_calls_total{provider="gemini-primary",outcome="ok"}`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if WithLabels("bare") != "bare" {
		t.Fatal("no labels should leave the name unchanged")
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter("doctis_triage_requests_total", "Triage requests").Add(10)
	r.Counter(WithLabels("doctis_triage_requests_total", "lang", "fr"), "").Add(3)
	r.Gauge("doctis_kb_diseases", "Loaded diseases").Set(41)
	h := r.Histogram("doctis_triage_duration_seconds", "Triage latency", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)

	out := r.Render()
	for _, want := range []string{
		"# TYPE doctis_triage_requests_total counter",
		"# TYPE doctis_kb_diseases gauge",
		"# TYPE doctis_triage_duration_seconds histogram",
		"doctis_triage_requests_total 10",
		`doctis_triage_requests_total{lang="fr"} 3`,
		"doctis_kb_diseases 41",
		`doctis_triage_duration_seconds_bucket{le="0.1"} 1`,
		`doctis_triage_duration_seconds_bucket{le="+Inf"} 2`,
		"doctis_triage_duration_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in render output:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("doctis_ingest_records_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "doctis_ingest_records_total 1") {
		t.Error("metric missing from handler output")
	}
}

func TestCollectRuntimeRegistersGauges(t *testing.T) {
	r := New()
	r.CollectRuntime("doctis_test", time.Minute)

	out := r.Render()
	for _, want := range []string{
		"# TYPE doctis_test_goroutines gauge",
		"# TYPE doctis_test_heap_alloc_bytes gauge",
		"# TYPE doctis_test_gc_cycles_total gauge",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in render output", want)
		}
	}
}

func TestMetricBaseName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"doctis_triage_requests_total", "doctis_triage_requests_total"},
		{`doctis_triage_requests_total{lang="en"}`, "doctis_triage_requests_total"},
		{`x{a="1",b="2"}`, "x"},
	}
	for _, tt := range tests {
		if got := metricBaseName(tt.in); got != tt.want {
			t.Errorf("metricBaseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
