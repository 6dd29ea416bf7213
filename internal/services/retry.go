package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/config"
	"ephemeral-chat/internal/observability"
)

// withRetry runs fn until it succeeds, fails with a non-transient error, the
// attempt budget is spent or ctx is done. Only idempotent operations may be
// wrapped.
func withRetry[T any](ctx context.Context, cfg config.RetryConfig, op string, log *zap.Logger, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = 0

	retries := uint64(0)
	if cfg.MaxAttempts > 1 {
		retries = uint64(cfg.MaxAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)

	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := fn()
		if err != nil && !apperr.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy, func(err error, wait time.Duration) {
		observability.IncStoreRetry(op)
		log.Warn("retrying after transient store error",
			zap.String("operation", op),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}
