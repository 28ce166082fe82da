package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/doctis-ai/doctis-mvp/pkg/resilience"
)

type fakeProvider struct {
	name    string
	reply   string
	err     error
	calls   int
	timeout time.Duration
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeProvider) AttemptTimeout() time.Duration {
	if f.timeout > 0 {
		return f.timeout
	}
	return DefaultAttemptTimeout
}

func TestChain_FirstSuccessShortCircuits(t *testing.T) {
	a := &fakeProvider{name: "a", reply: "from a"}
	b := &fakeProvider{name: "b", reply: "from b"}
	chain := NewChain([]Provider{a, b}, ChainOpts{})

	got, err := chain.Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "from a" {
		t.Errorf("got %q, want reply from first provider", got)
	}
	if b.calls != 0 {
		t.Error("later provider invoked despite earlier success")
	}
}

func TestChain_QuotaFallsThrough(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("429 resource exhausted: quota exceeded")}
	b := &fakeProvider{name: "b", reply: "from b"}
	c := &fakeProvider{name: "c", reply: "from c"}
	chain := NewChain([]Provider{a, b, c}, ChainOpts{})

	got, err := chain.Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "from b" {
		t.Errorf("got %q, want reply from second provider", got)
	}
	if c.calls != 0 {
		t.Error("third provider invoked despite second succeeding")
	}
}

func TestChain_TotalFailureReturnsSyntheticResponse(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("quota exceeded")}
	b := &fakeProvider{name: "b", err: errors.New("connection refused")}
	chain := NewChain([]Provider{a, b}, ChainOpts{})

	got, err := chain.Generate(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}
	if !strings.HasPrefix(got, "System Error: Unable to generate response.") {
		t.Errorf("got %q, want synthetic response", got)
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
	if pe.Provider != "b" {
		t.Errorf("error should carry the last provider, got %q", pe.Provider)
	}
}

func TestChain_EmptyCompletionIsMalformed(t *testing.T) {
	a := &fakeProvider{name: "a", reply: "   "}
	b := &fakeProvider{name: "b", reply: "real answer"}
	chain := NewChain([]Provider{a, b}, ChainOpts{})

	got, err := chain.Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "real answer" {
		t.Errorf("got %q, want fallback past blank completion", got)
	}
}

func TestChain_BreakerSkipsTrippedProvider(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("boom")}
	b := &fakeProvider{name: "b", reply: "from b"}
	chain := NewChain([]Provider{a, b}, ChainOpts{
		Breaker: resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Hour},
	})

	for range 3 {
		if _, err := chain.Generate(context.Background(), "sys", "user"); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	// Two failures trip the breaker; the third round must not reach a.
	if a.calls != 2 {
		t.Errorf("tripped provider called %d times, want 2", a.calls)
	}
	if b.calls != 3 {
		t.Errorf("healthy provider called %d times, want 3", b.calls)
	}
}

func TestChain_NoProviders(t *testing.T) {
	chain := NewChain(nil, ChainOpts{})
	got, err := chain.Generate(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error with no providers")
	}
	if !strings.HasPrefix(got, "System Error:") {
		t.Errorf("got %q, want synthetic response", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"quota keyword", errors.New("Quota exceeded for model"), KindRateLimited},
		{"429", errors.New("http 429 too many requests"), KindRateLimited},
		{"exhausted", errors.New("RESOURCE EXHAUSTED"), KindRateLimited},
		{"bad key", errors.New("invalid API key provided"), KindUnauthorized},
		{"offline", errors.New("dial tcp: connection refused"), KindUnavailable},
		{"opaque", errors.New("something odd"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify("p", tt.err); got.Kind != tt.want {
				t.Errorf("Classify(%q).Kind = %s, want %s", tt.err, got.Kind, tt.want)
			}
		})
	}
}

func TestClassify_PreservesExplicitKind(t *testing.T) {
	inner := &ProviderError{Provider: "p", Kind: KindMalformed, Err: errors.New("no choices")}
	got := Classify("p", inner)
	if got.Kind != KindMalformed {
		t.Errorf("explicit kind lost: got %s", got.Kind)
	}
}

func TestChain_WithKeyRebindsProvider(t *testing.T) {
	a := &rekeyableProvider{fakeProvider: fakeProvider{name: "a", err: errors.New("quota")}}
	keyed := NewChain([]Provider{a}, ChainOpts{}).WithKey(context.Background(), "user-key")
	got, err := keyed.Generate(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "keyed reply" {
		t.Errorf("got %q, want reply from rekeyed provider", got)
	}
	if a.gotKey != "user-key" {
		t.Errorf("provider rekeyed with %q", a.gotKey)
	}
}

func TestChain_WithKeyEmptyIsNoop(t *testing.T) {
	a := &fakeProvider{name: "a", reply: "ok"}
	chain := NewChain([]Provider{a}, ChainOpts{})
	if chain.WithKey(context.Background(), "") != chain {
		t.Error("empty key should return the shared chain unchanged")
	}
}

type rekeyableProvider struct {
	fakeProvider
	gotKey string
}

func (r *rekeyableProvider) WithKey(_ context.Context, key string) (Provider, error) {
	r.gotKey = key
	return &fakeProvider{name: r.name, reply: "keyed reply"}, nil
}
