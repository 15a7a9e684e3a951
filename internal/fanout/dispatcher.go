// Package fanout runs a named set of branch calls concurrently under a
// maximum-in-flight bound and joins on all of them.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tendant/roast-pipeline/internal/metrics"
	"github.com/tendant/roast-pipeline/internal/services"
)

// DefaultMaxConcurrent is the in-flight bound when none is configured
const DefaultMaxConcurrent = 5

var (
	// ErrDuplicateBranch is returned when two branches share a name
	ErrDuplicateBranch = errors.New("duplicate branch name")

	// ErrNothingScheduled is returned when no branch could be admitted
	ErrNothingScheduled = errors.New("no branch could be scheduled")

	// ErrBranchPanicked is the absent reason for a branch that panicked
	ErrBranchPanicked = errors.New("branch panicked")
)

// Branch is one named call in a fan-out
type Branch struct {
	Name string
	Call func(ctx context.Context) services.Outcome[json.RawMessage]
}

// Dispatcher runs branches under a bounded admission gate
type Dispatcher struct {
	maxConcurrent int
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithMetrics records branch outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a dispatcher admitting at most maxConcurrent branches at once
func NewDispatcher(maxConcurrent int, opts ...Option) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	d := &Dispatcher{
		maxConcurrent: maxConcurrent,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxConcurrent returns the in-flight bound
func (d *Dispatcher) MaxConcurrent() int {
	return d.maxConcurrent
}

// Dispatch runs every branch and returns once all of them resolved.
// Every submitted name appears exactly once in the result. A branch that
// fails, times out, panics or cannot be admitted resolves to Absent; only a
// dispatch in which no branch could be admitted at all returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, requestID string, branches []Branch) (services.Results, error) {
	results := make(services.Results, len(branches))
	if len(branches) == 0 {
		return results, nil
	}

	seen := make(map[string]struct{}, len(branches))
	for _, b := range branches {
		if _, dup := seen[b.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBranch, b.Name)
		}
		seen[b.Name] = struct{}{}
	}

	// each branch writes only its own slot
	slots := make([]services.Outcome[json.RawMessage], len(branches))
	gate := semaphore.NewWeighted(int64(d.maxConcurrent))
	var group errgroup.Group
	admitted := 0

	for i, b := range branches {
		err := ctx.Err()
		if err == nil {
			err = gate.Acquire(ctx, 1)
		}
		if err != nil {
			slots[i] = services.Absent[json.RawMessage](fmt.Errorf("branch %s not admitted: %w", b.Name, err))
			continue
		}
		admitted++
		group.Go(func() error {
			defer gate.Release(1)
			slots[i] = d.run(ctx, requestID, b)
			return nil
		})
	}
	_ = group.Wait()

	if admitted == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNothingScheduled, ctx.Err())
	}

	for i, b := range branches {
		results[b.Name] = slots[i]
	}
	return results, nil
}

func (d *Dispatcher) run(ctx context.Context, requestID string, b Branch) (outcome services.Outcome[json.RawMessage]) {
	start := time.Now()
	d.metrics.BranchStarted()

	defer func() {
		if r := recover(); r != nil {
			outcome = services.Absent[json.RawMessage](fmt.Errorf("%w: %s: %v", ErrBranchPanicked, b.Name, r))
		}
		elapsed := time.Since(start)
		d.metrics.BranchFinished(b.Name, outcome.IsPresent(), elapsed)
		if outcome.IsPresent() {
			d.logger.Info("branch completed", "request_id", requestID, "branch", b.Name, "duration_ms", elapsed.Milliseconds())
		} else {
			d.logger.Warn("branch absent", "request_id", requestID, "branch", b.Name, "duration_ms", elapsed.Milliseconds(), "reason", outcome.Reason())
		}
	}()

	if b.Call == nil {
		return services.Absent[json.RawMessage](fmt.Errorf("branch %s has no call", b.Name))
	}
	return b.Call(ctx)
}
