package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/papercomputeco/folio/pkg/logger"
)

// RetryConfig bounds the retries WithRetry performs.
type RetryConfig struct {
	// MaxTries counts the first call. Values below 1 mean a single call.
	MaxTries int

	// Delay is the constant wait between tries.
	Delay time.Duration

	Logger *slog.Logger
}

// WithRetry wraps call so that transient failures (see IsTransient) are
// retried. Client errors and cancellation return after the first try.
func WithRetry(call CallFunc, cfg RetryConfig) CallFunc {
	if cfg.MaxTries <= 1 {
		return call
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return func(ctx context.Context, req Request) (string, error) {
		return backoff.Retry(ctx, func() (string, error) {
			out, err := call(ctx, req)
			if err != nil && !IsTransient(err) {
				return "", backoff.Permanent(err)
			}
			return out, err
		},
			backoff.WithBackOff(backoff.NewConstantBackOff(cfg.Delay)),
			backoff.WithMaxTries(uint(cfg.MaxTries)),
			backoff.WithNotify(func(err error, next time.Duration) {
				log.Warn("model_call_retry", "error", err, "retry_in", next)
			}),
		)
	}
}
