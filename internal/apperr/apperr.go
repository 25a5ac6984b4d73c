// Package apperr is the error taxonomy shared by discovery, the bracket engine and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNoNearbyResults     = errors.New("no restaurants found nearby")
	ErrInsufficientResults = errors.New("not enough restaurants found nearby")
	ErrEnrichmentTimeout   = errors.New("enrichment timed out")
	ErrExternalAPI         = errors.New("external api failure")
	ErrNotFound            = errors.New("not found")
	ErrInvalidParticipants = errors.New("participant count must be a power of two and at least 2")
	ErrInvalidWinner       = errors.New("winner is not part of this match")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation failed")
)

// ExternalAPIError is a terminal upstream failure after retries.
type ExternalAPIError struct {
	API        string
	StatusCode int
	Err        error
}

func (e *ExternalAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.API, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.API, e.Err)
}

func (e *ExternalAPIError) Unwrap() []error {
	return []error{ErrExternalAPI, e.Err}
}

// InsufficientResults carries how many places were found against how many were required.
type InsufficientResults struct {
	Found    int
	Required int
}

func (e *InsufficientResults) Error() string {
	return fmt.Sprintf("%s: found %d, need %d", ErrInsufficientResults, e.Found, e.Required)
}

func (e *InsufficientResults) Unwrap() error {
	return ErrInsufficientResults
}

func NotFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, what, id)
}
