// Package fn provides the Result type and the stage combinators the build
// and retrieval pipelines are composed from.
package fn

import "fmt"

// Result carries either a value or an error, never both.
type Result[T any] struct {
	value T
	err   error
	valid bool
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, valid: true}
}

// Err wraps an error.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Errf wraps a formatted error.
func Errf[T any](format string, args ...any) Result[T] {
	return Result[T]{err: fmt.Errorf(format, args...)}
}

// FromPair lifts a conventional (value, error) return into a Result.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk reports whether the Result holds a value.
func (r Result[T]) IsOk() bool { return r.valid }

// IsErr reports whether the Result holds an error.
func (r Result[T]) IsErr() bool { return !r.valid }

// Unwrap lowers the Result back to a (value, error) pair.
func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }

// Must returns the value, panicking on error. Test helper.
func (r Result[T]) Must() T {
	if !r.valid {
		panic(r.err)
	}
	return r.value
}

// UnwrapOr returns the value, or fallback when the Result is an error.
func (r Result[T]) UnwrapOr(fallback T) T {
	if !r.valid {
		return fallback
	}
	return r.value
}

// Collect flattens a slice of Results into one: all values in order, or the
// first error encountered.
func Collect[T any](results []Result[T]) Result[[]T] {
	out := make([]T, len(results))
	for i, r := range results {
		if !r.valid {
			return Err[[]T](r.err)
		}
		out[i] = r.value
	}
	return Ok(out)
}
