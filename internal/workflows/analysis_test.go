package workflows

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/roast-pipeline/internal/fanout"
	"github.com/tendant/roast-pipeline/internal/features"
	"github.com/tendant/roast-pipeline/internal/services"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

func analyzerServer(t *testing.T, payload string, delay time.Duration, seen *sync.Map) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.AnalyzeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if seen != nil {
			seen.Store(r.Header.Get(pipeline.RequestIDHeader), req.RequestID)
		}
		if delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalysisWorkflow_PartialTimeouts(t *testing.T) {
	var seen sync.Map
	payloads := map[string]string{
		pipeline.BranchFaceAnalysis:      `{"face_count":0,"faces":[]}`,
		pipeline.BranchBodyAnalysis:      `{"body_detected":false,"fashion_items":[]}`,
		pipeline.BranchDemographics:      `{"skin_tone":"dark"}`,
		pipeline.BranchObjectScene:       `{"objects":[]}`,
		pipeline.BranchQualityAesthetics: `{"image_quality_score":80}`,
	}
	slow := map[string]bool{
		pipeline.BranchBodyAnalysis: true,
		pipeline.BranchObjectScene:  true,
	}

	var analyzers []*services.Analyzer
	for _, name := range pipeline.DefaultBranches() {
		var delay time.Duration
		if slow[name] {
			delay = 2 * time.Second
		}
		srv := analyzerServer(t, payloads[name], delay, &seen)
		analyzers = append(analyzers, services.NewAnalyzer(services.NewClient(name, srv.URL, services.WithTimeout(100*time.Millisecond)), ""))
	}

	w := NewAnalysisWorkflow(fanout.NewDispatcher(5), analyzers, nil)
	start := time.Now()
	result, err := w.Analyze(context.Background(), "aW1n", "req-42")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "bounded by the per-call timeout")

	assert.Len(t, result.Branches, 5)
	assert.Equal(t, 3, result.Branches.PresentCount())
	assert.False(t, result.Branches[pipeline.BranchBodyAnalysis].IsPresent())
	assert.False(t, result.Branches[pipeline.BranchObjectScene].IsPresent())
	assert.Greater(t, result.ProcessingTime, time.Duration(0))

	agg := features.Aggregate(result.Branches, result.ProcessingTime)
	assert.ElementsMatch(t, []string{
		pipeline.BranchFaceAnalysis,
		pipeline.BranchDemographics,
		pipeline.BranchQualityAesthetics,
	}, agg.PresentSlots())

	seen.Range(func(header, body any) bool {
		assert.Equal(t, "req-42", header)
		assert.Equal(t, "req-42", body)
		return true
	})
}

func TestAnalysisWorkflow_NoAnalyzers(t *testing.T) {
	result, err := NewAnalysisWorkflow(fanout.NewDispatcher(5), nil, nil).Analyze(context.Background(), "aW1n", "req")
	require.NoError(t, err)
	assert.Empty(t, result.Branches)
}

func TestAnalysisWorkflow_CancelledRequest(t *testing.T) {
	srv := analyzerServer(t, `{}`, 0, nil)
	analyzers := []*services.Analyzer{services.NewAnalyzer(services.NewClient("demographics", srv.URL), "")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAnalysisWorkflow(fanout.NewDispatcher(5), analyzers, nil).Analyze(ctx, "aW1n", "req")
	assert.ErrorIs(t, err, fanout.ErrNothingScheduled)
}

func TestAnalysisWorkflow_Targets(t *testing.T) {
	analyzers := []*services.Analyzer{
		services.NewAnalyzer(services.NewClient("a", "http://a"), ""),
		services.NewAnalyzer(services.NewClient("b", "http://b"), ""),
	}
	targets := NewAnalysisWorkflow(fanout.NewDispatcher(5), analyzers, nil).Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "a", targets[0].Name())
	assert.Equal(t, "b", targets[1].Name())
}
