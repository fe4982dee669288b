package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{NewValidationError("missing title"), http.StatusBadRequest},
		{NewNotFound("Ticket"), http.StatusNotFound},
		{NewUnauthorized("no token"), http.StatusUnauthorized},
		{NewForbidden("not yours"), http.StatusForbidden},
		{NewInternalError("Update failed", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		domainErr := ToDomainError(tc.err)
		assert.Equal(t, tc.status, domainErr.HTTPStatus, domainErr.Message)
	}
}

func TestInternalErrorCarriesDetails(t *testing.T) {
	err := NewInternalError("Update failed", errors.New("connection reset"))
	domainErr := ToDomainError(err)
	assert.Equal(t, "connection reset", domainErr.Details)
	assert.EqualError(t, domainErr, "Update failed: connection reset")
}

func TestToDomainErrorMapsNoRows(t *testing.T) {
	domainErr := ToDomainError(fmt.Errorf("load ticket: %w", pgx.ErrNoRows))
	assert.Equal(t, http.StatusNotFound, domainErr.HTTPStatus)
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	cause := errors.New("disk full")
	domainErr := ToDomainError(cause)
	require.NotNil(t, domainErr)
	assert.Equal(t, http.StatusInternalServerError, domainErr.HTTPStatus)
	assert.Equal(t, "disk full", domainErr.Details)
	assert.True(t, errors.Is(domainErr, cause), "unwrap reaches the cause")
}

func TestToDomainErrorPassthrough(t *testing.T) {
	original := NewForbidden("not yours")
	wrapped := fmt.Errorf("delete comment: %w", original)
	domainErr := ToDomainError(wrapped)
	assert.Equal(t, http.StatusForbidden, domainErr.HTTPStatus)
	assert.Equal(t, "not yours", domainErr.Message)
}
