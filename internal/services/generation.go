package services

import (
	"context"
	"errors"
	"strings"

	"github.com/tendant/roast-pipeline/internal/tokens"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// GenerationPath is the generation service endpoint
const GenerationPath = "/api/v1/generate"

// ErrEmptyRoast is returned when generation succeeds without text
var ErrEmptyRoast = errors.New("generation service returned an empty roast_text")

// GenerationClient calls the generation service. Every failure is returned
// as an error; generation has no partial-success notion.
type GenerationClient struct {
	client *Client
	budget *tokens.Budget
}

// NewGenerationClient creates the stage-2 adapter. budget may be nil.
func NewGenerationClient(client *Client, budget *tokens.Budget) *GenerationClient {
	return &GenerationClient{
		client: client,
		budget: budget,
	}
}

// Name returns the service name
func (g *GenerationClient) Name() string {
	return g.client.Name()
}

// Generate converts the aggregated features into roast text
func (g *GenerationClient) Generate(ctx context.Context, features pipeline.AggregatedFeatures, level pipeline.RoastLevel, requestID string) (*pipeline.GenerateResponse, error) {
	if features.VLMSceneAnalysis != nil && g.budget != nil {
		scene := g.budget.Truncate(*features.VLMSceneAnalysis)
		features.VLMSceneAnalysis = &scene
	}

	var resp pipeline.GenerateResponse
	err := g.client.PostJSON(ctx, GenerationPath, requestID, pipeline.GenerateRequest{
		Features:   features,
		RoastLevel: level,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.RoastText) == "" {
		return nil, ErrEmptyRoast
	}
	resp.RoastText = strings.TrimSpace(resp.RoastText)
	return &resp, nil
}

// Ping checks the generation service's liveness endpoint
func (g *GenerationClient) Ping(ctx context.Context) error {
	return g.client.Ping(ctx)
}
