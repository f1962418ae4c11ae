package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Clone(ErrNotFound, "notice not found"))

	got := FromError(wrapped)
	assert.Equal(t, ErrNotFound.Code, got.Code)
	assert.Equal(t, "notice not found", got.Message)
	assert.Equal(t, http.StatusNotFound, got.Status)
}

func TestFromErrorWrapsUnknownAsInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.EqualError(t, got, "internal server error: boom")
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, ErrTransientIO.Code, ErrTransientIO.Status, "presence upsert failed")
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, FromError(nil))
}

func TestTransientAndConfigurationHelpers(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	transient := Transient(cause, "failed to load material catalog")
	assert.True(t, transient.Retryable())
	assert.Equal(t, http.StatusServiceUnavailable, transient.Status)
	assert.ErrorIs(t, transient, cause)

	cfg := Configuration(cause, "invalid export storage dir")
	assert.False(t, cfg.Retryable())
	assert.Equal(t, ErrConfiguration.Code, cfg.Code)
}

func TestHasCodeMatchesClonesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("cache: %w", Clone(ErrCacheMiss, "notices:page=1"))

	assert.True(t, HasCode(err, ErrCacheMiss))
	assert.False(t, HasCode(err, ErrNotFound))
	assert.False(t, HasCode(errors.New("plain"), ErrCacheMiss))
	assert.False(t, HasCode(err, nil))
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := Wrap(errors.New("no rows"), ErrNotFound.Code, ErrNotFound.Status, "course not found")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
}
