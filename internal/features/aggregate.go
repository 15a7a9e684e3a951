// Package features merges branch outcomes into one AggregatedFeatures record.
package features

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tendant/roast-pipeline/internal/services"
	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

// validator is implemented by every branch payload type
type validator interface {
	Validate() error
}

// Aggregate copies each Present branch into its slot. Absent branches,
// unknown branch names and payloads that fail to decode or validate leave
// their slot unset. It performs no I/O and never fails.
func Aggregate(results services.Results, elapsed time.Duration) pipeline.AggregatedFeatures {
	agg, _ := AggregateWithRejects(results, elapsed)
	return agg
}

// AggregateWithRejects is Aggregate plus the reason each Present branch was dropped
func AggregateWithRejects(results services.Results, elapsed time.Duration) (pipeline.AggregatedFeatures, map[string]error) {
	var agg pipeline.AggregatedFeatures
	rejects := make(map[string]error)

	for name, outcome := range results {
		raw, ok := outcome.Get()
		if !ok {
			continue
		}

		var err error
		switch name {
		case pipeline.BranchFaceAnalysis:
			agg.FaceAnalysis, err = decode[pipeline.FaceAnalysisResult](raw)
		case pipeline.BranchBodyAnalysis:
			agg.BodyAnalysis, err = decode[pipeline.BodyAnalysisResult](raw)
		case pipeline.BranchDemographics:
			agg.Demographics, err = decode[pipeline.DemographicsResult](raw)
		case pipeline.BranchObjectScene:
			agg.ObjectScene, err = decode[pipeline.ObjectSceneResult](raw)
		case pipeline.BranchQualityAesthetics:
			agg.QualityAesthetics, err = decode[pipeline.QualityAestheticsResult](raw)
		case pipeline.BranchSceneDescription:
			agg.VLMSceneAnalysis, err = decodeScene(raw)
		default:
			continue
		}
		if err != nil {
			rejects[name] = err
		}
	}

	if elapsed > 0 {
		ms := float64(elapsed) / float64(time.Millisecond)
		agg.ProcessingTimeMs = &ms
	}
	return agg, rejects
}

func decode[T any, PT interface {
	*T
	validator
}](raw json.RawMessage) (*T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("payload is null")
	}
	var v T
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	if err := PT(&v).Validate(); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return &v, nil
}

// decodeScene accepts either the analyzer's {scene_description: ...} object
// or the bare string a stage-1 service already flattened it into.
func decodeScene(raw json.RawMessage) (*string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("malformed payload: %w", err)
		}
		if s == "" {
			return nil, fmt.Errorf("invalid payload: scene_description is required")
		}
		return &s, nil
	}
	scene, err := decode[pipeline.SceneDescriptionResult](trimmed)
	if err != nil {
		return nil, err
	}
	return &scene.SceneDescription, nil
}
