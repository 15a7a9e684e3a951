package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// Analyzer calls one analysis branch (face, body, demographics, ...)
type Analyzer struct {
	client *Client
	path   string
}

// NewAnalyzer creates a branch adapter posting to client's base URL + path
func NewAnalyzer(client *Client, path string) *Analyzer {
	if path == "" {
		path = "/analyze"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &Analyzer{
		client: client,
		path:   path,
	}
}

// Name returns the branch name
func (a *Analyzer) Name() string {
	return a.client.Name()
}

// Analyze sends the image to the branch. The payload is kept opaque here;
// decoding into the branch type happens during aggregation.
func (a *Analyzer) Analyze(ctx context.Context, imageBase64, requestID string) Outcome[json.RawMessage] {
	return Call[json.RawMessage](ctx, a.client, a.path, requestID, pipeline.AnalyzeRequest{
		ImageBase64: imageBase64,
		RequestID:   requestID,
	})
}

// Ping checks the branch's liveness endpoint
func (a *Analyzer) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}
