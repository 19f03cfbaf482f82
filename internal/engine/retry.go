package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ecsdb/ecsdb/internal/ecserr"
)

// transientRetryMaxElapsed bounds how long withRetry keeps retrying a
// single operation, mirroring the teacher's dolt.serverRetryMaxElapsed.
const transientRetryMaxElapsed = 30 * time.Second

func newTransientBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = transientRetryMaxElapsed
	return bo
}

// withRetry runs op, retrying with exponential backoff while it returns an
// ecserr.ErrTransient error, the same shape as the teacher's
// internal/storage/dolt.DoltStore.withRetry — but classifying retryability
// from this codebase's own error taxonomy (ecserr.ErrTransient) instead of
// dolt's string-matched MySQL driver errors, since every transient failure
// here (pgx connection loss, serialization conflicts) is already wrapped
// with that sentinel at the point it's produced.
func withRetry(ctx context.Context, op func() error) error {
	bo := newTransientBackoff()
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ecserr.Is(err, ecserr.ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}
