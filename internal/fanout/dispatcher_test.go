package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/roast-pipeline/internal/services"
)

func presentBranch(name string) Branch {
	return Branch{
		Name: name,
		Call: func(ctx context.Context) services.Outcome[json.RawMessage] {
			return services.Present(json.RawMessage(`{"ok":true}`))
		},
	}
}

func TestDispatch_AllPresent(t *testing.T) {
	d := NewDispatcher(5)
	branches := []Branch{presentBranch("a"), presentBranch("b"), presentBranch("c")}

	results, err := d.Dispatch(context.Background(), "req-1", branches)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 3, results.PresentCount())
	for _, name := range []string{"a", "b", "c"} {
		raw, ok := results[name].Get()
		assert.True(t, ok, name)
		assert.JSONEq(t, `{"ok":true}`, string(raw))
	}
}

func TestDispatch_NeverExceedsMaxConcurrent(t *testing.T) {
	for _, tc := range []struct {
		branches int
		max      int
	}{
		{branches: 20, max: 3},
		{branches: 5, max: 5},
		{branches: 8, max: 1},
		{branches: 2, max: 10},
	} {
		t.Run(fmt.Sprintf("%d_branches_max_%d", tc.branches, tc.max), func(t *testing.T) {
			var inFlight, peak atomic.Int64
			branches := make([]Branch, tc.branches)
			for i := range branches {
				branches[i] = Branch{
					Name: fmt.Sprintf("b%d", i),
					Call: func(ctx context.Context) services.Outcome[json.RawMessage] {
						n := inFlight.Add(1)
						for {
							p := peak.Load()
							if n <= p || peak.CompareAndSwap(p, n) {
								break
							}
						}
						time.Sleep(10 * time.Millisecond)
						inFlight.Add(-1)
						return services.Present(json.RawMessage(`{}`))
					},
				}
			}

			results, err := NewDispatcher(tc.max).Dispatch(context.Background(), "req", branches)
			require.NoError(t, err)
			assert.Len(t, results, tc.branches)
			assert.Equal(t, tc.branches, results.PresentCount())
			assert.LessOrEqual(t, peak.Load(), int64(tc.max))
			assert.GreaterOrEqual(t, peak.Load(), int64(1))
			assert.Zero(t, inFlight.Load())
		})
	}
}

func TestDispatch_Empty(t *testing.T) {
	results, err := NewDispatcher(5).Dispatch(context.Background(), "req", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDispatch_FailuresAreAbsorbed(t *testing.T) {
	branches := []Branch{
		presentBranch("ok"),
		{
			Name: "broken",
			Call: func(ctx context.Context) services.Outcome[json.RawMessage] {
				return services.Absent[json.RawMessage](errors.New("connection refused"))
			},
		},
		{
			Name: "panics",
			Call: func(ctx context.Context) services.Outcome[json.RawMessage] {
				panic("boom")
			},
		},
		{Name: "nil-call"},
	}

	results, err := NewDispatcher(2).Dispatch(context.Background(), "req", branches)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.True(t, results["ok"].IsPresent())
	assert.False(t, results["broken"].IsPresent())
	assert.False(t, results["panics"].IsPresent())
	assert.ErrorIs(t, results["panics"].Reason(), ErrBranchPanicked)
	assert.False(t, results["nil-call"].IsPresent())
}

func TestDispatch_DuplicateNamesRejected(t *testing.T) {
	var calls atomic.Int64
	counting := func(name string) Branch {
		return Branch{
			Name: name,
			Call: func(ctx context.Context) services.Outcome[json.RawMessage] {
				calls.Add(1)
				return services.Present(json.RawMessage(`{}`))
			},
		}
	}

	_, err := NewDispatcher(5).Dispatch(context.Background(), "req", []Branch{counting("a"), counting("a")})
	assert.ErrorIs(t, err, ErrDuplicateBranch)
	assert.Zero(t, calls.Load())
}

func TestDispatch_CancelledContextSchedulesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	branch := Branch{
		Name: "a",
		Call: func(ctx context.Context) services.Outcome[json.RawMessage] {
			calls.Add(1)
			return services.Present(json.RawMessage(`{}`))
		},
	}

	_, err := NewDispatcher(5).Dispatch(ctx, "req", []Branch{branch})
	assert.ErrorIs(t, err, ErrNothingScheduled)
	assert.Zero(t, calls.Load())
}

func TestDispatch_WaitsForSlowBranches(t *testing.T) {
	slow := Branch{
		Name: "slow",
		Call: func(ctx context.Context) services.Outcome[json.RawMessage] {
			time.Sleep(50 * time.Millisecond)
			return services.Present(json.RawMessage(`{}`))
		},
	}

	start := time.Now()
	results, err := NewDispatcher(5).Dispatch(context.Background(), "req", []Branch{slow, presentBranch("fast")})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 2, results.PresentCount())
}

func TestNewDispatcher_DefaultBound(t *testing.T) {
	assert.Equal(t, DefaultMaxConcurrent, NewDispatcher(0).MaxConcurrent())
	assert.Equal(t, 3, NewDispatcher(3).MaxConcurrent())
}
