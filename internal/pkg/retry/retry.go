// Package retry wraps database calls with a per-call timeout and bounded
// exponential backoff for transient failures.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"arcade-backend/internal/config"
)

// ErrTransient marks an error the caller may retry later.
var ErrTransient = errors.New("transient infrastructure error")

// Policy controls per-call timeouts and the retry budget.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	CallTimeout     time.Duration
}

// DefaultPolicy returns the policy used when configuration leaves fields unset.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CallTimeout:     5 * time.Second,
	}
}

// FromConfig builds a policy from configuration. Unset fields keep the defaults.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		CallTimeout:     cfg.QueryTimeout,
	}.withDefaults()
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = def.CallTimeout
	}
	return p
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// attempt budget is spent. Each attempt gets its own CallTimeout deadline.
// When the budget is exhausted on a transient error the returned error wraps ErrTransient.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
		defer cancel()

		v, err := op(callCtx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().
				Err(err).
				Str("op", name).
				Int("attempt", attempt).
				Dur("backoff", next).
				Msg("Retrying transient database error")
		}),
	)
	if err == nil {
		return res, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if ctx.Err() == nil && IsTransient(err) {
		return res, errors.Join(ErrTransient, err)
	}
	return res, err
}

// IsTransient reports whether err is a timeout, a dropped connection or a
// server condition that clears on its own (serialization failure, deadlock,
// connection limits, shutdown in progress).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.TooManyConnections,
			pgerrcode.AdminShutdown,
			pgerrcode.CannotConnectNow,
			pgerrcode.QueryCanceled:
			return true
		}
		return pgerrcode.IsConnectionException(pgErr.Code)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}
