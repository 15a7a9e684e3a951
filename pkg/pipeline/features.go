package pipeline

import "fmt"

// FaceDetection is one detected face
type FaceDetection struct {
	BBox       []float64   `json:"bbox"`
	Confidence float64     `json:"confidence"`
	Landmarks  [][]float64 `json:"landmarks,omitempty"`
}

// FaceAnalysisResult is the face_analysis branch payload
type FaceAnalysisResult struct {
	FaceCount            int             `json:"face_count"`
	Faces                []FaceDetection `json:"faces"`
	Gender               *string         `json:"gender,omitempty"`
	GenderConfidence     *float64        `json:"gender_confidence,omitempty"`
	Age                  *int            `json:"age,omitempty"`
	AgeRange             []int           `json:"age_range,omitempty"`
	Race                 *string         `json:"race,omitempty"`
	RaceConfidence       *float64        `json:"race_confidence,omitempty"`
	Emotion              *string         `json:"emotion,omitempty"`
	EmotionConfidence    *float64        `json:"emotion_confidence,omitempty"`
	AttractivenessScore  *float64        `json:"attractiveness_score,omitempty"`
	FacialStructureScore *float64        `json:"facial_structure_score,omitempty"`
}

// Validate checks the value ranges of the payload
func (r *FaceAnalysisResult) Validate() error {
	if r.FaceCount < 0 {
		return fmt.Errorf("face_count must be >= 0, got %d", r.FaceCount)
	}
	for i, f := range r.Faces {
		if len(f.BBox) != 4 {
			return fmt.Errorf("faces[%d].bbox must have 4 elements", i)
		}
		if err := inRange("faces.confidence", &f.Confidence, 0, 1); err != nil {
			return err
		}
	}
	return firstErr(
		inRange("gender_confidence", r.GenderConfidence, 0, 1),
		inRange("race_confidence", r.RaceConfidence, 0, 1),
		inRange("emotion_confidence", r.EmotionConfidence, 0, 1),
		inRange("attractiveness_score", r.AttractivenessScore, 0, 10),
		inRange("facial_structure_score", r.FacialStructureScore, 0, 10),
	)
}

// BodyAnalysisResult is the body_analysis branch payload
type BodyAnalysisResult struct {
	BodyDetected       bool        `json:"body_detected"`
	BodyType           *string     `json:"body_type,omitempty"`
	BodyTypeConfidence *float64    `json:"body_type_confidence,omitempty"`
	PoseKeypoints      [][]float64 `json:"pose_keypoints,omitempty"`
	FashionItems       []string    `json:"fashion_items"`
	FashionStyle       *string     `json:"fashion_style,omitempty"`
	DressingScore      *float64    `json:"dressing_score,omitempty"`
}

// Validate checks the value ranges of the payload
func (r *BodyAnalysisResult) Validate() error {
	return firstErr(
		inRange("body_type_confidence", r.BodyTypeConfidence, 0, 1),
		inRange("dressing_score", r.DressingScore, 0, 10),
	)
}

// DemographicsResult is the demographics branch payload
type DemographicsResult struct {
	SkinTone            *string  `json:"skin_tone,omitempty"`
	SkinToneITA         *float64 `json:"skin_tone_ita,omitempty"`
	Ethnicity           *string  `json:"ethnicity,omitempty"`
	EthnicityConfidence *float64 `json:"ethnicity_confidence,omitempty"`
}

// Validate checks the value ranges of the payload
func (r *DemographicsResult) Validate() error {
	return inRange("ethnicity_confidence", r.EthnicityConfidence, 0, 1)
}

// ObjectDetection is one detected object
type ObjectDetection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// ObjectSceneResult is the object_scene branch payload
type ObjectSceneResult struct {
	Objects           []ObjectDetection `json:"objects"`
	SceneType         *string           `json:"scene_type,omitempty"`
	SceneConfidence   *float64          `json:"scene_confidence,omitempty"`
	BackgroundType    *string           `json:"background_type,omitempty"`
	BackgroundQuality *string           `json:"background_quality,omitempty"`
}

// Validate checks the value ranges of the payload
func (r *ObjectSceneResult) Validate() error {
	for i, o := range r.Objects {
		if o.Label == "" {
			return fmt.Errorf("objects[%d].label is required", i)
		}
		if err := inRange("objects.confidence", &o.Confidence, 0, 1); err != nil {
			return err
		}
	}
	return inRange("scene_confidence", r.SceneConfidence, 0, 1)
}

// QualityAestheticsResult is the quality_aesthetics branch payload
type QualityAestheticsResult struct {
	ImageQualityScore *float64 `json:"image_quality_score,omitempty"`
	AestheticScore    *float64 `json:"aesthetic_score,omitempty"`
	CompositionScore  *float64 `json:"composition_score,omitempty"`
	LightingQuality   *string  `json:"lighting_quality,omitempty"`
	Brightness        *float64 `json:"brightness,omitempty"`
	Contrast          *float64 `json:"contrast,omitempty"`
	IsBlurry          *bool    `json:"is_blurry,omitempty"`
	HasFilters        *bool    `json:"has_filters,omitempty"`
}

// Validate checks the value ranges of the payload
func (r *QualityAestheticsResult) Validate() error {
	return firstErr(
		inRange("image_quality_score", r.ImageQualityScore, 0, 100),
		inRange("aesthetic_score", r.AestheticScore, 0, 10),
		inRange("composition_score", r.CompositionScore, 0, 10),
		inRange("brightness", r.Brightness, 0, 255),
		inRange("contrast", r.Contrast, 0, 255),
	)
}

// SceneDescriptionResult is the payload returned by the VLM scene analyzer
type SceneDescriptionResult struct {
	SceneDescription string   `json:"scene_description"`
	ProcessingTimeMs *float64 `json:"processing_time_ms,omitempty"`
}

// Validate requires a non-empty description
func (r *SceneDescriptionResult) Validate() error {
	if r.SceneDescription == "" {
		return fmt.Errorf("scene_description is required")
	}
	return nil
}

// AggregatedFeatures holds one optional slot per analysis branch.
// Any subset of slots may be nil. Values are copied, never shared for mutation.
type AggregatedFeatures struct {
	FaceAnalysis      *FaceAnalysisResult      `json:"face_analysis"`
	VLMSceneAnalysis  *string                  `json:"vlm_scene_analysis"`
	BodyAnalysis      *BodyAnalysisResult      `json:"body_analysis"`
	Demographics      *DemographicsResult      `json:"demographics"`
	ObjectScene       *ObjectSceneResult       `json:"object_scene"`
	QualityAesthetics *QualityAestheticsResult `json:"quality_aesthetics"`
	ProcessingTimeMs  *float64                 `json:"processing_time_ms"`
}

// PresentSlots returns the branch names whose slot is set
func (f AggregatedFeatures) PresentSlots() []string {
	var slots []string
	if f.FaceAnalysis != nil {
		slots = append(slots, BranchFaceAnalysis)
	}
	if f.BodyAnalysis != nil {
		slots = append(slots, BranchBodyAnalysis)
	}
	if f.Demographics != nil {
		slots = append(slots, BranchDemographics)
	}
	if f.ObjectScene != nil {
		slots = append(slots, BranchObjectScene)
	}
	if f.QualityAesthetics != nil {
		slots = append(slots, BranchQualityAesthetics)
	}
	if f.VLMSceneAnalysis != nil {
		slots = append(slots, BranchSceneDescription)
	}
	return slots
}

func inRange(field string, v *float64, lo, hi float64) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return fmt.Errorf("%s must be within [%g, %g], got %g", field, lo, hi, *v)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
