package ai

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed taxonomy of upstream failures
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorRateLimit
	ErrorOverloaded
	ErrorContextOverflow
	ErrorTimeout
	ErrorAuth
	ErrorBilling
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorRateLimit:
		return "rate_limit"
	case ErrorOverloaded:
		return "overloaded"
	case ErrorContextOverflow:
		return "context_overflow"
	case ErrorTimeout:
		return "timeout"
	case ErrorAuth:
		return "auth"
	case ErrorBilling:
		return "billing"
	default:
		return "unknown"
	}
}

// Retryable is true for transient failures only
func (k ErrorKind) Retryable() bool {
	return k == ErrorRateLimit || k == ErrorTimeout || k == ErrorOverloaded
}

// Checked in order; the first matching category wins. Error strings often carry
// several of these (e.g. "429 ... context window"), so the order is part of the contract.
var errorPatterns = []struct {
	kind     ErrorKind
	patterns []string
}{
	{ErrorRateLimit, []string{"rate limit", "rate_limit", "too many requests", "429", "quota exceeded", "resource_exhausted", "usage limit"}},
	{ErrorOverloaded, []string{"overloaded", "overloaded_error"}},
	{ErrorContextOverflow, []string{"context overflow", "context window", "prompt too large", "too long", "token limit", "maximum context", "exceeds the model", "input too large", "context_length_exceeded"}},
	{ErrorTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrorAuth, []string{"401", "403", "unauthorized", "forbidden", "invalid api key", "invalid_api_key", "authentication"}},
	{ErrorBilling, []string{"402", "payment required", "insufficient credits", "billing", "insufficient balance"}},
}

// ClassifyError maps raw error text to an ErrorKind
func ClassifyError(text string) ErrorKind {
	lower := strings.ToLower(text)
	for _, group := range errorPatterns {
		for _, p := range group.patterns {
			if strings.Contains(lower, p) {
				return group.kind
			}
		}
	}
	return ErrorUnknown
}

// ClassifyErrorReason classifies an error, preferring the kind already attached
// to a ProviderError
func ClassifyErrorReason(err error) ErrorKind {
	if err == nil {
		return ErrorUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ClassifyError(err.Error())
}

// IsContextOverflow checks if an error indicates context window overflow
func IsContextOverflow(err error) bool {
	return ClassifyErrorReason(err) == ErrorContextOverflow
}

// IsRetryable reports whether a failed call may be retried
func IsRetryable(err error) bool {
	return ClassifyErrorReason(err).Retryable()
}

// ProviderError is a failed upstream call, classified once
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

// NewProviderError wraps err and classifies its text
func NewProviderError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: provider, Kind: ClassifyError(err.Error()), Err: err}
}

func (e *ProviderError) Error() string {
	return e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every provider in a chain was skipped or failed.
// Err is the last failed call, nil when every provider was skipped.
type ExhaustedError struct {
	LastError string
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("All providers exhausted. Last error: %s", e.LastError)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
