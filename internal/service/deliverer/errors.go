package deliverer

import (
	"errors"
	"fmt"
)

// ErrorClass tells the delivery ledger how to treat a failure. Transient
// and rate-limit errors are retried with backoff, auth and permanent errors
// dead-letter the attempt immediately.
type ErrorClass string

const (
	ClassAuth      ErrorClass = "auth"
	ClassRateLimit ErrorClass = "rate_limit"
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
)

// Retryable reports whether an attempt failing with this class should be
// rescheduled by the retry sweep.
func (c ErrorClass) Retryable() bool {
	return c == ClassTransient || c == ClassRateLimit
}

// ClassifiedError wraps a delivery failure with its class. The boundary
// between transient and permanent is platform-specific configuration, not a
// core decision: adapters classify, the ledger only consumes the class.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

func Transient(err error) error { return &ClassifiedError{Class: ClassTransient, Err: err} }
func RateLimit(err error) error { return &ClassifiedError{Class: ClassRateLimit, Err: err} }
func Auth(err error) error      { return &ClassifiedError{Class: ClassAuth, Err: err} }
func Permanent(err error) error { return &ClassifiedError{Class: ClassPermanent, Err: err} }

// Classify extracts the class of a delivery error. Unclassified errors are
// treated as transient so an adapter bug never silently dead-letters work.
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassTransient
}
