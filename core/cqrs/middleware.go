package cqrs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/codewandler/cqrskit/core/es"
	"github.com/codewandler/cqrskit/core/perkey"
)

// NewLogMiddleware logs every dispatch at debug level and failures at warn.
func NewLogMiddleware(log *slog.Logger) Middleware {
	log = log.With(slog.String("middleware", "log"))
	return Named("log", func(ctx context.Context, cmd Command, next Next) (*Result, error) {
		meta := cmd.CommandMeta()
		l := log.With(
			slog.String("cmd", cmd.CommandType()),
			slog.String("cmd_id", meta.CommandID),
			slog.String("aggregate_id", meta.AggregateID),
		)
		l.Debug("dispatching command")
		start := time.Now()
		res, err := next(ctx, cmd)
		if err != nil {
			l.Warn("command rejected", slog.Any("error", err), slog.Duration("duration", time.Since(start)))
			return res, err
		}
		l.Debug(
			"command handled",
			slog.Int("events", len(res.Events)),
			slog.Duration("duration", time.Since(start)),
		)
		return res, nil
	})
}

// Retryable reports whether a failed dispatch can be run again without
// repeating a write: store failures while hydrating, and version conflicts
// raised by a conditional append.
func Retryable(err error) bool {
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Stage {
	case StageHydrating:
		return true
	case StagePersisting:
		return se.Conditional && errors.Is(se.Err, es.ErrConcurrencyConflict)
	}
	return false
}

type retryConfig struct {
	maxTries  uint
	backoff   func() backoff.BackOff
	retryable func(error) bool
	log       *slog.Logger
}

type RetryOption func(*retryConfig)

func RetryMaxTries(n uint) RetryOption {
	return func(c *retryConfig) { c.maxTries = n }
}

// RetryBackOff sets the backoff policy. fn is called once per dispatch and
// must return a BackOff that no other dispatch uses.
func RetryBackOff(fn func() backoff.BackOff) RetryOption {
	return func(c *retryConfig) { c.backoff = fn }
}

// RetryIf replaces Retryable as the retry predicate.
func RetryIf(fn func(error) bool) RetryOption {
	return func(c *retryConfig) { c.retryable = fn }
}

func RetryLog(l *slog.Logger) RetryOption {
	return func(c *retryConfig) { c.log = l }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

// NewRetryMiddleware re-runs the rest of the chain with exponential backoff
// while it fails with a retryable error.
func NewRetryMiddleware(opts ...RetryOption) Middleware {
	cfg := retryConfig{maxTries: 3, retryable: Retryable, backoff: defaultBackOff, log: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.log.With(slog.String("middleware", "retry"))

	return Named("retry", func(ctx context.Context, cmd Command, next Next) (*Result, error) {
		b := cfg.backoff()
		b.Reset()

		var last *Result
		res, err := backoff.Retry(ctx, func() (*Result, error) {
			res, err := next(ctx, cmd)
			if err == nil {
				return res, nil
			}
			last = res
			if !cfg.retryable(err) {
				return res, backoff.Permanent(err)
			}
			return res, err
		},
			backoff.WithBackOff(b),
			backoff.WithMaxTries(cfg.maxTries),
			backoff.WithNotify(func(err error, d time.Duration) {
				log.Debug("retrying command",
					slog.String("cmd", cmd.CommandType()),
					slog.Duration("wait", d),
					slog.Any("error", err),
				)
			}),
		)
		if err != nil {
			return last, err
		}
		return res, nil
	})
}

// NewPerKeyMiddleware runs commands for the same aggregate one at a time.
// Commands without an aggregate id pass through.
func NewPerKeyMiddleware(registry *Registry, sched *perkey.Scheduler[string]) Middleware {
	return Named("perkey", func(ctx context.Context, cmd Command, next Next) (*Result, error) {
		aggID := cmd.CommandMeta().AggregateID
		aggType, ok := registry.AggregateTypeForCommand(cmd.CommandType())
		if aggID == "" || !ok {
			return next(ctx, cmd)
		}
		var (
			res *Result
			err error
		)
		serr := sched.DoContext(ctx, aggType+"/"+aggID, func() error {
			res, err = next(ctx, cmd)
			return nil
		})
		if serr != nil {
			return nil, fmt.Errorf("perkey %s/%s: %w", aggType, aggID, serr)
		}
		return res, err
	})
}
