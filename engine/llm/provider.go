// Package llm runs the generation fallback chain across multiple model
// providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider is a single generation backend. Implementations wrap one model at
// one endpoint; the chain owns ordering and fallback.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Generate produces a completion for the user prompt under the given
	// system instruction.
	Generate(ctx context.Context, system, user string) (string, error)
}

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	// KindUnknown covers failures the provider could not classify.
	KindUnknown ErrorKind = iota
	// KindRateLimited means quota or rate limits were hit; the provider is
	// healthy but over budget.
	KindRateLimited
	// KindUnauthorized means the credential was rejected.
	KindUnauthorized
	// KindUnavailable means the endpoint could not be reached or returned a
	// server error.
	KindUnavailable
	// KindMalformed means the provider answered but the response was
	// unusable.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnavailable:
		return "unavailable"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ProviderError is a classified failure from one provider attempt.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm: %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify wraps err as a ProviderError. Errors that already carry a kind
// keep it; everything else falls back to keyword matching on the message,
// which is how upstream SDK errors describe quota exhaustion.
func Classify(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return &ProviderError{Provider: provider, Kind: pe.Kind, Err: err}
	}
	return &ProviderError{Provider: provider, Kind: kindFromMessage(err), Err: err}
}

func kindFromMessage(err error) ErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "exhausted"),
		strings.Contains(msg, "rate limit"):
		return KindRateLimited
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "api key"):
		return KindUnauthorized
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "503"):
		return KindUnavailable
	default:
		return KindUnknown
	}
}
