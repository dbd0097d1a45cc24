package store_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pairsync/pairsync-server/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestError_ErrorWithCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := store.ErrAlreadyExists.WithCause(cause)

	assert.Contains(t, err.Error(), "resource already exists")
	assert.Contains(t, err.Error(), "database is locked")
	assert.Equal(t, cause, err.Unwrap())
	assert.Equal(t, http.StatusConflict, err.HTTPCode())
}

func TestError_IsSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("get category: %w", store.ErrNotFound.WithCause(errors.New("no rows")))

	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.False(t, errors.Is(err, store.ErrBatchNotFound))
}
