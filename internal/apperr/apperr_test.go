package apperr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExternalAPIErrorUnwraps(t *testing.T) {
	err := &ExternalAPIError{API: "local-search", StatusCode: 502, Err: errors.New("bad gateway")}
	wrapped := errors.Join(errors.New("page 3"), err)

	assert.ErrorIs(t, wrapped, ErrExternalAPI)
	assert.Contains(t, err.Error(), "status 502")

	var apiErr *ExternalAPIError
	assert.ErrorAs(t, wrapped, &apiErr)
	assert.Equal(t, "local-search", apiErr.API)

	ctxErr := &ExternalAPIError{API: "enrichment", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, ctxErr, context.DeadlineExceeded)
}

func TestInsufficientResults(t *testing.T) {
	err := &InsufficientResults{Found: 9, Required: 16}
	assert.ErrorIs(t, err, ErrInsufficientResults)
	assert.Contains(t, err.Error(), "found 9, need 16")
}

func TestNotFound(t *testing.T) {
	err := NotFound("match", 7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "not found: match 7", err.Error())
}
