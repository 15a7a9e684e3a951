package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// AnalysisPath is the stage-1 boundary endpoint
const AnalysisPath = "/api/v1/process"

// AnalysisResult is what stage 1 hands to aggregation
type AnalysisResult struct {
	Branches       Results
	ProcessingTime time.Duration
}

// AnalysisClient calls the remote stage-1 service. Unlike branch calls,
// its failures are returned as errors: a stage-1 transport failure is fatal.
type AnalysisClient struct {
	client *Client
}

// NewAnalysisClient creates the stage-1 boundary adapter
func NewAnalysisClient(client *Client) *AnalysisClient {
	return &AnalysisClient{client: client}
}

// Name returns the service name
func (a *AnalysisClient) Name() string {
	return a.client.Name()
}

// Analyze runs stage 1 remotely. Null or missing branch fields become Absent.
func (a *AnalysisClient) Analyze(ctx context.Context, imageBase64, requestID string) (*AnalysisResult, error) {
	var body map[string]json.RawMessage
	err := a.client.PostJSON(ctx, AnalysisPath, requestID, pipeline.AnalyzeRequest{
		ImageBase64: imageBase64,
		RequestID:   requestID,
	}, &body)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%s returned an empty body", a.client.Name())
	}

	result := &AnalysisResult{Branches: make(Results)}
	for name, raw := range body {
		if name == "processing_time_ms" {
			var ms float64
			if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
				result.ProcessingTime = time.Duration(ms * float64(time.Millisecond))
			}
			continue
		}
		if isNull(raw) {
			result.Branches[name] = Absent[json.RawMessage](fmt.Errorf("%s reported no result for %s", a.client.Name(), name))
			continue
		}
		result.Branches[name] = Present(raw)
	}
	return result, nil
}

// Ping checks the stage-1 service's liveness endpoint
func (a *AnalysisClient) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func isNull(raw json.RawMessage) bool {
	s := string(raw)
	return len(raw) == 0 || s == "null"
}
