package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrExternalService is returned when an external service call fails.
	ErrExternalService = errors.New("external service error")
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEmptyIndex is returned when a query runs against an index with no entries.
	ErrEmptyIndex = errors.New("index is empty")
	// ErrUnsupportedSource is returned for sources the loader cannot read.
	ErrUnsupportedSource = errors.New("unsupported source")
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match validation failures against ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ParseError reports a page (or whole source, when Page is 0) that could not be parsed.
// It is non-fatal for the document unless every page failed.
type ParseError struct {
	DocumentID string
	Source     string
	Page       int
	Err        error
}

func (e *ParseError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("parse error in %s page %d: %v", e.Source, e.Page, e.Err)
	}
	return fmt.Sprintf("parse error in %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EmbeddingServiceError reports texts that could not be embedded after all retries.
// Indexes refers to positions in the batch handed to the embedding client.
type EmbeddingServiceError struct {
	Indexes  []int
	Attempts int
	Err      error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service failed for %d text(s) after %d attempt(s): %v", len(e.Indexes), e.Attempts, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// RetrievalError is returned when a query cannot produce context at all.
type RetrievalError struct {
	Reason string
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retrieval failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("retrieval failed (%s)", e.Reason)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError wraps a language model failure during answer generation.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ConsistencyError reports divergence between the ledger and the vector backend.
type ConsistencyError struct {
	MissingFromBackend []string
	UnknownInBackend   []string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger and vector backend diverged: %d missing from backend, %d unknown to ledger",
		len(e.MissingFromBackend), len(e.UnknownInBackend))
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
