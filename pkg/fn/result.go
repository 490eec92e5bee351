// Package fn holds the small generic helpers the engines share: a Result type
// for outcomes that are stored or handed between steps, and slice utilities.
package fn

// Result[T] is either a value or an error.
type Result[T any] struct {
	val T
	err error
	ok  bool
}

// Ok creates a successful Result.
func Ok[T any](v T) Result[T] {
	return Result[T]{val: v, ok: true}
}

// Err creates a failed Result from an error.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// FromPair creates a Result from a (value, error) pair.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk returns true if the result is successful.
func (r Result[T]) IsOk() bool { return r.ok }

// IsErr returns true if the result is an error.
func (r Result[T]) IsErr() bool { return !r.ok }

// Unwrap returns the value and error.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }

// Error returns the failure, or nil.
func (r Result[T]) Error() error { return r.err }

// UnwrapOr returns the value or a fallback on error.
func (r Result[T]) UnwrapOr(fallback T) T {
	if !r.ok {
		return fallback
	}
	return r.val
}

// OnOk runs f with the value when the result is successful and returns r
// unchanged. State commits hang off this so they only ever see success.
func (r Result[T]) OnOk(f func(T)) Result[T] {
	if r.ok {
		f(r.val)
	}
	return r
}

// OnErr runs f with the error when the result failed.
func (r Result[T]) OnErr(f func(error)) Result[T] {
	if !r.ok {
		f(r.err)
	}
	return r
}

// MapResult transforms Result[T] to Result[U].
func MapResult[T, U any](r Result[T], f func(T) U) Result[U] {
	if !r.ok {
		return Err[U](r.err)
	}
	return Ok(f(r.val))
}
