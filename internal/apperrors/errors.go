// Package apperrors defines sentinel and typed errors shared by the stores,
// controllers and handlers. Callers match them with errors.Is / errors.As.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")

	// ErrConfiguration marks rule data that must abort startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvariantViolation marks a write that would leave two primary
	// passports, two default personal infos or two current DACs.
	ErrInvariantViolation = errors.New("invariant violation")

	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrSubmissionFailed   = errors.New("submission failed")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrTransient          = errors.New("transient failure")
)

type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// SubmissionError is a terminal "failed" answer from the DAC service. It is
// surfaced to the traveler and never retried automatically.
type SubmissionError struct {
	CardType string
	Details  string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s submission failed: %s", e.CardType, e.Details)
}

func (e *SubmissionError) Unwrap() error {
	return ErrSubmissionFailed
}

type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}
