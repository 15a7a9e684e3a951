package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/tendant/roast-pipeline/internal/metrics"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

type fakeTarget struct {
	name string
	up   atomic.Bool
	hang bool
}

func newTarget(name string, up bool) *fakeTarget {
	t := &fakeTarget{name: name}
	t.up.Store(up)
	return t
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) Ping(ctx context.Context) error {
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if !f.up.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestProbe_AllHealthy(t *testing.T) {
	p := NewProbe([]Target{newTarget("a", true), newTarget("b", true)}, time.Second, nil, nil)
	v := p.Check(context.Background())
	assert.Equal(t, Verdict{"a": true, "b": true}, v)
	assert.True(t, v.Healthy())
	assert.Equal(t, pipeline.StatusHealthy, v.Status())
}

func TestProbe_OneDownstreamFlips(t *testing.T) {
	flaky := newTarget("flaky", true)
	p := NewProbe([]Target{newTarget("stable", true), flaky}, time.Second, nil, nil)

	assert.True(t, p.Check(context.Background()).Healthy())

	flaky.up.Store(false)
	v := p.Check(context.Background())
	assert.Equal(t, Verdict{"stable": true, "flaky": false}, v)
	assert.Equal(t, pipeline.StatusDegraded, v.Status())

	flaky.up.Store(true)
	assert.True(t, p.Check(context.Background()).Healthy())
}

func TestProbe_TimeoutMarksOnlyThatTarget(t *testing.T) {
	stuck := &fakeTarget{name: "stuck", hang: true}
	p := NewProbe([]Target{stuck, newTarget("ok", true)}, 50*time.Millisecond, nil, nil)

	start := time.Now()
	v := p.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Verdict{"stuck": false, "ok": true}, v)
}

func TestProbe_NoTargetsIsDegraded(t *testing.T) {
	v := NewProbe(nil, 0, nil, nil).Check(context.Background())
	assert.Empty(t, v)
	assert.False(t, v.Healthy())
	assert.Equal(t, pipeline.StatusDegraded, v.Status())
}

func TestProbe_RecordsDownstreamGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := NewProbe([]Target{newTarget("up", true), newTarget("down", false)}, time.Second, m, nil)
	p.Check(context.Background())

	families, err := reg.Gather()
	assert.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "roast_downstream_up" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			values[metric.GetLabel()[0].GetValue()] = metric.GetGauge().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"up": 1, "down": 0}, values)
}
