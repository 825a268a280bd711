// Package fault classifies handler errors for the queue runtime. A
// permanent fault (missing entity, malformed payload, unsupported status)
// must not be retried; everything else is treated as transient and goes
// through the retry policy.
package fault

import "errors"

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retriable. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
