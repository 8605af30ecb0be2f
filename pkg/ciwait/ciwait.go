// Package ciwait polls remote checks until they settle or a budget runs out.
package ciwait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stevekinney/silvan-sub003/internal/logging"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

const (
	DefaultTimeout  = 30 * time.Minute
	DefaultInterval = 15 * time.Second

	// DefaultWarnFraction is the share of the budget after which a warning fires.
	DefaultWarnFraction = 0.8
)

// Check reports the current CI state: domain.CIPending, domain.CIPassed or domain.CIFailed.
type Check func(ctx context.Context) (string, error)

// Warning is passed to the warning callback once per Poll.
type Warning struct {
	Elapsed   time.Duration
	Remaining time.Duration
	Budget    time.Duration
	Polls     int
}

// Result describes how a Poll ended.
type Result struct {
	State   string
	Polls   int
	Elapsed time.Duration
	Warned  bool
}

type config struct {
	timeout      time.Duration
	interval     time.Duration
	warnFraction float64
	onWarning    func(Warning)
	logger       *slog.Logger
}

// Option configures Poll.
type Option func(*config)

// WithTimeout sets the total budget.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithInterval sets the delay between checks.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithWarnFraction moves the pre-timeout warning. Values outside (0, 1) are ignored.
func WithWarnFraction(f float64) Option {
	return func(c *config) {
		if f > 0 && f < 1 {
			c.warnFraction = f
		}
	}
}

// OnWarning registers a callback fired when the warning threshold passes.
func OnWarning(fn func(Warning)) Option {
	return func(c *config) {
		c.onWarning = fn
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Poll calls check until it reports something other than pending.
//
// Poll owns its timeout: when the budget runs out it returns a Result with
// State domain.CITimeout and an error matching domain.ErrTimeout. Cancellation
// of ctx returns an error matching domain.ErrCanceled. An error from check, or a
// state other than pending, passed or failed, ends the poll immediately.
func Poll(ctx context.Context, check Check, opts ...Option) (Result, error) {
	cfg := &config{
		timeout:      DefaultTimeout,
		interval:     DefaultInterval,
		warnFraction: DefaultWarnFraction,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	start := time.Now()
	deadline := time.NewTimer(cfg.timeout)
	defer deadline.Stop()
	warnAfter := time.Duration(float64(cfg.timeout) * cfg.warnFraction)
	warn := time.NewTimer(warnAfter)
	defer warn.Stop()
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	var res Result
	for {
		state, err := check(ctx)
		res.Polls++
		res.Elapsed = time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				return res, interrupted(ctx.Err())
			}
			return res, fmt.Errorf("ci check failed: %w", err)
		}
		switch state {
		case domain.CIPending:
		case domain.CIPassed, domain.CIFailed:
			res.State = state
			cfg.logger.Debug("ci settled", "state", state, "polls", res.Polls, "elapsed", res.Elapsed)
			return res, nil
		default:
			return res, &domain.Error{
				Kind:    domain.KindTransient,
				Op:      "ci.wait",
				Message: fmt.Sprintf("ci check reported unknown state %q", state),
				Details: map[string]any{"state": state, "polls": res.Polls},
			}
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				res.Elapsed = time.Since(start)
				return res, interrupted(ctx.Err())
			case <-deadline.C:
				res.State = domain.CITimeout
				res.Elapsed = time.Since(start)
				cfg.logger.Warn("ci wait timed out", "budget", cfg.timeout, "polls", res.Polls)
				return res, &domain.Error{
					Kind:    domain.KindTimeout,
					Op:      "ci.wait",
					Message: domain.ErrTimeout.Message,
					Details: map[string]any{"budget": cfg.timeout.String(), "polls": res.Polls},
				}
			case <-warn.C:
				res.Warned = true
				elapsed := time.Since(start)
				w := Warning{Elapsed: elapsed, Remaining: cfg.timeout - elapsed, Budget: cfg.timeout, Polls: res.Polls}
				cfg.logger.Warn("ci wait nearing timeout", "elapsed", elapsed, "budget", cfg.timeout)
				if cfg.onWarning != nil {
					cfg.onWarning(w)
				}
			case <-ticker.C:
				break wait
			}
		}
	}
}

func interrupted(cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return &domain.Error{Kind: domain.KindTimeout, Op: "ci.wait", Message: domain.ErrTimeout.Message, Err: cause}
	}
	return &domain.Error{Kind: domain.KindCanceled, Op: "ci.wait", Message: domain.ErrCanceled.Message, Err: cause}
}
