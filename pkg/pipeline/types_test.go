package pipeline

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoastLevel(t *testing.T) {
	for _, s := range []string{"mild", "medium", "savage"} {
		level, err := ParseRoastLevel(s)
		require.NoError(t, err)
		assert.Equal(t, RoastLevel(s), level)
	}

	for _, s := range []string{"", "extreme", "MILD", "Savage", " medium", "medium "} {
		_, err := ParseRoastLevel(s)
		assert.ErrorIs(t, err, ErrInvalidRoastLevel, "%q", s)
	}
}

func TestNewRequestID_Unique(t *testing.T) {
	const n = 10000
	ids := make([]string, n)

	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = NewRequestID()
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestValidate_Ranges(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	assert.NoError(t, (&FaceAnalysisResult{AttractivenessScore: f(10)}).Validate())
	assert.Error(t, (&FaceAnalysisResult{GenderConfidence: f(-0.1)}).Validate())
	assert.NoError(t, (&BodyAnalysisResult{DressingScore: f(0)}).Validate())
	assert.Error(t, (&BodyAnalysisResult{BodyTypeConfidence: f(2)}).Validate())
	assert.Error(t, (&ObjectSceneResult{SceneConfidence: f(1.01)}).Validate())
	assert.NoError(t, (&QualityAestheticsResult{ImageQualityScore: f(100), Contrast: f(255)}).Validate())
	assert.Error(t, (&QualityAestheticsResult{CompositionScore: f(10.5)}).Validate())
	assert.Error(t, (&SceneDescriptionResult{}).Validate())
}

func TestPresentSlots(t *testing.T) {
	scene := "a beach"
	f := AggregatedFeatures{
		Demographics:     &DemographicsResult{},
		VLMSceneAnalysis: &scene,
	}
	assert.Equal(t, []string{BranchDemographics, BranchSceneDescription}, f.PresentSlots())
	assert.Empty(t, AggregatedFeatures{}.PresentSlots())
}
