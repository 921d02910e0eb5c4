package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery signals malformed or incomplete search parameters.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUnknownLocation signals a zip code with no coordinate entry.
	ErrUnknownLocation = errors.New("unknown location")
	// ErrOutOfScope signals a question unrelated to the catalog.
	ErrOutOfScope = errors.New("question out of scope")
	// ErrAmbiguous signals an on-topic question the schema cannot answer.
	ErrAmbiguous = errors.New("question ambiguous for schema")
	// ErrRejected signals a proposal vetoed by the query governor.
	ErrRejected = errors.New("proposal rejected")
	// ErrUpstreamUnavailable signals a completion-provider failure after the retry budget.
	ErrUpstreamUnavailable = errors.New("completion provider unavailable")
	// ErrExecutionFailed signals a storage-layer failure during query execution.
	ErrExecutionFailed = errors.New("query execution failed")
)

// UnknownLocationError wraps ErrUnknownLocation with the zip code that missed.
type UnknownLocationError struct {
	Zip string
}

func (e *UnknownLocationError) Error() string {
	return fmt.Sprintf("ZIP code %s not found in our database", e.Zip)
}

func (e *UnknownLocationError) Unwrap() error { return ErrUnknownLocation }

// NewUnknownLocation creates an unknown-location error for a zip code.
func NewUnknownLocation(zip string) error {
	return &UnknownLocationError{Zip: zip}
}
