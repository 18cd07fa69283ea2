package shared

import "errors"

// Class categorizes an error for retry handling. Transient failures are
// retried with backoff, terminal failures map straight to a terminal job
// state, and conflicts are surfaced to the caller as "try later".
type Class int

const (
	ClassRetryable Class = iota
	ClassTerminal
	ClassConflict
)

// Classifier is implemented by domain errors that know their own class.
type Classifier interface {
	ErrorClass() Class
}

type classified struct {
	err   error
	class Class
}

func (c *classified) Error() string     { return c.err.Error() }
func (c *classified) Unwrap() error     { return c.err }
func (c *classified) ErrorClass() Class { return c.class }

// Terminal marks err as structural: it must never be retried.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, class: ClassTerminal}
}

// Conflict marks err as a concurrent-execution conflict, retryable by the caller later.
func Conflict(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, class: ClassConflict}
}

// Classify walks the error chain looking for an explicit classification.
// Unclassified errors default to retryable, so infrastructure hiccups
// (network, database) burn retry budget instead of failing jobs outright.
func Classify(err error) Class {
	var c Classifier
	if errors.As(err, &c) {
		return c.ErrorClass()
	}
	return ClassRetryable
}
