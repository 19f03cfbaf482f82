package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ecsdb/ecsdb/internal/ecserr"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return ecserr.Wrap("op", ecserr.ErrTransient, errors.New("blip"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryStopsImmediatelyOnNonTransientError(t *testing.T) {
	attempts := 0
	boom := ecserr.Validation("bad input")
	err := withRetry(context.Background(), func() error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, ecserr.ErrValidation)
	assert.Equal(t, 1, attempts)
}
