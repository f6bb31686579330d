package models

import "errors"

// ProcessingError classifies a pipeline failure per the retry policy:
// transient errors are retried until the envelope's budget runs out,
// permanent ones fail the message immediately.
type ProcessingError struct {
	Op        string
	Message   string
	Transient bool
	Err       error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func NewTransientError(op, message string, err error) *ProcessingError {
	return &ProcessingError{Op: op, Message: message, Transient: true, Err: err}
}

func NewPermanentError(op, message string, err error) *ProcessingError {
	return &ProcessingError{Op: op, Message: message, Transient: false, Err: err}
}

// IsTransient reports whether err may succeed on retry. Unclassified
// errors are treated as transient so that a flaky collaborator does not
// permanently fail an item before its retry budget is spent.
func IsTransient(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return true
}
