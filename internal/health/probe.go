// Package health probes downstream services and reduces the results to one verdict.
package health

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/roast-pipeline/internal/metrics"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// DefaultTimeout bounds each liveness call
const DefaultTimeout = 5 * time.Second

// Target is one downstream service that can be probed
type Target interface {
	Name() string
	Ping(ctx context.Context) error
}

// Verdict maps service name to liveness
type Verdict map[string]bool

// Healthy reports whether every entry is up. Unlike a plain AND over the
// entries, an empty verdict is not healthy: a tier with nothing to probe
// cannot vouch for its downstreams.
func (v Verdict) Healthy() bool {
	if len(v) == 0 {
		return false
	}
	for _, up := range v {
		if !up {
			return false
		}
	}
	return true
}

// Status returns "healthy" or "degraded"
func (v Verdict) Status() string {
	if v.Healthy() {
		return pipeline.StatusHealthy
	}
	return pipeline.StatusDegraded
}

// Probe checks every target in parallel with no concurrency bound
type Probe struct {
	targets []Target
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProbe creates a probe. A non-positive timeout uses DefaultTimeout.
func NewProbe(targets []Target, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Probe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		targets: targets,
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

// Check pings every target. A failing target marks only its own entry false.
func (p *Probe) Check(ctx context.Context) Verdict {
	up := make([]bool, len(p.targets))
	var group errgroup.Group

	for i, t := range p.targets {
		group.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			err := t.Ping(callCtx)
			if err != nil {
				p.logger.Warn("downstream unhealthy", "service", t.Name(), "error", err)
			}
			p.metrics.SetDownstreamUp(t.Name(), err == nil)

			up[i] = err == nil
			return nil
		})
	}
	_ = group.Wait()

	verdict := make(Verdict, len(p.targets))
	for i, t := range p.targets {
		verdict[t.Name()] = up[i]
	}
	return verdict
}
