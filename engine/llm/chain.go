package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/doctis-ai/doctis-mvp/pkg/resilience"
)

// DefaultAttemptTimeout bounds a single provider attempt unless the provider
// declares its own.
const DefaultAttemptTimeout = 60 * time.Second

// fallbackPrefix opens the synthetic response returned when every provider
// fails. Callers serve it as the answer body so the request itself still
// succeeds.
const fallbackPrefix = "System Error: Unable to generate response. "

// AttemptTimeouter lets a provider declare a tighter per-attempt deadline
// than the chain default.
type AttemptTimeouter interface {
	AttemptTimeout() time.Duration
}

// Rekeyer is implemented by providers that can be rebound to a caller
// supplied credential for the duration of one request.
type Rekeyer interface {
	WithKey(ctx context.Context, apiKey string) (Provider, error)
}

// breakerSet holds one circuit breaker per provider name.
type breakerSet struct {
	mu       sync.Mutex
	opts     resilience.BreakerOpts
	breakers map[string]*resilience.Breaker
}

func (s *breakerSet) get(name string) *resilience.Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[name]
	if !ok {
		b = resilience.NewBreaker(s.opts)
		s.breakers[name] = b
	}
	return b
}

// Chain tries providers in order and returns the first successful
// completion. Later providers are never invoked once one succeeds.
type Chain struct {
	providers []Provider
	breakers  *breakerSet
	timeout   time.Duration
	log       *slog.Logger
}

// ChainOpts configures a Chain.
type ChainOpts struct {
	// AttemptTimeout bounds each provider attempt; zero means
	// DefaultAttemptTimeout.
	AttemptTimeout time.Duration
	// Breaker configures the per-provider circuit breakers.
	Breaker resilience.BreakerOpts
	Logger  *slog.Logger
}

// NewChain builds a fallback chain over providers, first to last.
func NewChain(providers []Provider, opts ChainOpts) *Chain {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Chain{
		providers: providers,
		breakers:  &breakerSet{opts: opts.Breaker, breakers: make(map[string]*resilience.Breaker)},
		timeout:   opts.AttemptTimeout,
		log:       log,
	}
}

// WithKey derives a chain for one request where every rekeyable provider is
// rebound to apiKey. The derived chain gets fresh breakers so failures
// against a caller's credential never trip the shared ones.
func (c *Chain) WithKey(ctx context.Context, apiKey string) *Chain {
	if apiKey == "" {
		return c
	}
	providers := make([]Provider, 0, len(c.providers))
	for _, p := range c.providers {
		if rk, ok := p.(Rekeyer); ok {
			keyed, err := rk.WithKey(ctx, apiKey)
			if err != nil {
				c.log.Warn("llm: provider rejected request key, keeping default", "provider", p.Name(), "error", err)
			} else {
				p = keyed
			}
		}
		providers = append(providers, p)
	}
	return &Chain{
		providers: providers,
		breakers:  &breakerSet{opts: c.breakers.opts, breakers: make(map[string]*resilience.Breaker)},
		timeout:   c.timeout,
		log:       c.log,
	}
}

// Generate runs the chain. On total failure it returns a synthetic response
// body alongside the last classified error, so callers can serve a degraded
// answer while still logging the cause.
func (c *Chain) Generate(ctx context.Context, system, user string) (string, error) {
	var lastErr error

	for _, p := range c.providers {
		text, err := c.attempt(ctx, p, system, user)
		if err == nil {
			c.log.Info("llm: generation succeeded", "provider", p.Name())
			return text, nil
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.log.Warn("llm: provider skipped, breaker open", "provider", p.Name())
			lastErr = Classify(p.Name(), err)
			continue
		}

		pe := Classify(p.Name(), err)
		if pe.Kind == KindRateLimited {
			c.log.Warn("llm: provider over quota, switching", "provider", p.Name(), "error", err)
		} else {
			c.log.Warn("llm: provider failed, switching", "provider", p.Name(), "kind", pe.Kind.String(), "error", err)
		}
		lastErr = pe

		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = errors.New("llm: no providers configured")
	}
	c.log.Error("llm: all providers failed", "error", lastErr)
	return fallbackPrefix + lastErr.Error(), lastErr
}

func (c *Chain) attempt(ctx context.Context, p Provider, system, user string) (string, error) {
	timeout := c.timeout
	if at, ok := p.(AttemptTimeouter); ok {
		timeout = at.AttemptTimeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var text string
	err := c.breakers.get(p.Name()).Call(ctx, func(ctx context.Context) error {
		out, err := p.Generate(ctx, system, user)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) == "" {
			return &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: errors.New("empty completion")}
		}
		text = out
		return nil
	})
	return text, err
}
