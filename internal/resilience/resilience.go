// Package resilience wraps venue calls with failure classification, a fixed
// retry budget for transient transport errors, and structured event logging.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"github.com/zcesur/crypto-arb/internal/domain"
)

const (
	DefaultAttempts = 5
	DefaultDelay    = 5 * time.Second
)

// Class is the outcome of classifying a failed call.
type Class int

const (
	// ClassFatal is anything unrecognised. It is never retried.
	ClassFatal Class = iota
	// ClassApplication means the venue explicitly reported a failure.
	ClassApplication
	// ClassTransient means a known-recoverable transport condition.
	ClassTransient
)

func (c Class) String() string {
	switch c {
	case ClassApplication:
		return "application"
	case ClassTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Classify sorts err into one of the three failure classes. Venue errors
// win over everything else; transient errors are recognised either by
// sentinel or by message so raw transport errors that never went through
// a binding still match.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}
	if domain.IsVenueError(err) {
		return ClassApplication
	}
	for _, s := range domain.TransientErrors {
		if errors.Is(err, s) {
			return ClassTransient
		}
	}
	msg := strings.ToLower(err.Error())
	for _, s := range domain.TransientErrors {
		if strings.Contains(msg, strings.ToLower(s.Error())) {
			return ClassTransient
		}
	}
	return ClassFatal
}

// RetryExhausted is returned when every attempt failed with a transient
// error. CorrelationID matches the correlation_id attribute of the
// per-attempt warnings in the log.
type RetryExhausted struct {
	Op            string
	CorrelationID string
	Attempts      int
	Last          error
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts (correlation_id=%s): %v",
		e.Op, e.Attempts, e.CorrelationID, e.Last)
}

func (e *RetryExhausted) Unwrap() error { return e.Last }

// Policy configures Call.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Classify func(error) Class
	Logger   *slog.Logger
	// Sleep waits between attempts. Nil means Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the production retry policy: five attempts, five
// seconds apart.
func DefaultPolicy(logger *slog.Logger) Policy {
	return Policy{
		Attempts: DefaultAttempts,
		Delay:    DefaultDelay,
		Classify: Classify,
		Logger:   logger,
	}
}

func (p Policy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

func (p Policy) classify(err error) Class {
	if p.Classify == nil {
		return Classify(err)
	}
	return p.Classify(err)
}

func (p Policy) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep == nil {
		return Sleep(ctx, d)
	}
	return p.Sleep(ctx, d)
}

// Call invokes fn under the policy. It logs the operation and its
// arguments before the first attempt and the result after success.
// Application and fatal errors return immediately; transient errors are
// retried until the attempt budget is spent.
func Call[T any](ctx context.Context, p Policy, op string, args []slog.Attr, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	log := p.logger()
	correlationID := uuid.NewString()

	log.LogAttrs(ctx, slog.LevelDebug, strings.ToUpper(op), args...)

	b := &backoff.Backoff{Min: p.Delay, Max: p.Delay, Factor: 1}
	var last error
	n := p.attempts()
	for attempt := 1; attempt <= n; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			log.DebugContext(ctx, "result",
				slog.String("op", op),
				slog.Any("result", out),
			)
			return out, nil
		}

		switch p.classify(err) {
		case ClassApplication:
			log.ErrorContext(ctx, "venue reported failure",
				slog.String("op", op),
				slog.String("error", err.Error()),
			)
			return zero, err
		case ClassTransient:
			last = err
			log.WarnContext(ctx, "transient failure",
				slog.String("op", op),
				slog.String("error", err.Error()),
				slog.Int("attempt", attempt),
				slog.String("correlation_id", correlationID),
			)
			if attempt == n || p.Delay <= 0 {
				continue
			}
			if err := p.sleep(ctx, b.Duration()); err != nil {
				return zero, fmt.Errorf("%s: retry wait: %w", op, err)
			}
		default:
			log.ErrorContext(ctx, "unexpected failure",
				slog.String("op", op),
				slog.String("error", err.Error()),
				slog.String("type", fmt.Sprintf("%T", err)),
			)
			return zero, err
		}
	}

	log.ErrorContext(ctx, "retries exhausted",
		slog.String("op", op),
		slog.Int("attempts", n),
		slog.String("correlation_id", correlationID),
	)
	return zero, &RetryExhausted{Op: op, CorrelationID: correlationID, Attempts: n, Last: last}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
