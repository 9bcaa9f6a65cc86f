package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultPollInterval = 1 * time.Second
	DefaultMaxWait      = 2 * time.Minute
)

// Poller waits for submitted operations to reach a terminal state
type Poller struct {
	backend  Backend
	interval time.Duration
	maxWait  time.Duration
}

// NewPoller creates a Poller. Non-positive durations fall back to the defaults.
func NewPoller(backend Backend, interval, maxWait time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Poller{
		backend:  backend,
		interval: interval,
		maxWait:  maxWait,
	}
}

// Await polls op until it succeeds, fails, the wait budget runs out, or ctx is cancelled.
// A failed status call ends the wait; it is never retried.
func (p *Poller) Await(ctx context.Context, op *Operation) (*AnalysisResult, error) {
	if r, ok := p.backend.(Releaser); ok {
		defer r.Release(op)
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	start := time.Now()
	for attempt := 1; ; attempt++ {
		status, err := p.backend.Status(waitCtx, op)
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, p.stopped(ctx, op)
			}
			return nil, err
		}

		slog.Debug("Polled analyze operation", "operation", op.ID, "state", status.State, "attempt", attempt)

		switch status.State {
		case StateSucceeded:
			slog.Debug("Analyze operation succeeded", "operation", op.ID, "elapsed_ms", time.Since(start).Milliseconds())
			if status.Result == nil {
				return &AnalysisResult{}, nil
			}
			return status.Result, nil
		case StateFailed:
			failure := &OperationFailedError{Message: "operation failed without details"}
			if status.Error != nil {
				failure.Code = status.Error.Code
				failure.Message = status.Error.Message
			}
			return nil, failure
		}

		select {
		case <-waitCtx.Done():
			return nil, p.stopped(ctx, op)
		case <-ticker.C:
		}
	}
}

// stopped reports why waiting ended early: caller cancellation or the wait budget
func (p *Poller) stopped(ctx context.Context, op *Operation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("waiting for operation %s: %w", op.ID, err)
	}
	slog.Warn("Analyze operation did not finish in time", "operation", op.ID, "max_wait", p.maxWait)
	return fmt.Errorf("operation %s after %s: %w", op.ID, p.maxWait, ErrPollTimeout)
}
