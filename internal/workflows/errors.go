package workflows

import (
	"errors"
	"fmt"

	"github.com/tendant/roast-pipeline/pkg/pipeline"
)

var (
	// ErrInvalidRoastLevel is returned when the roast level is not mild, medium or savage
	ErrInvalidRoastLevel = pipeline.ErrInvalidRoastLevel

	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = errors.New("invalid roast request")

	// ErrInvalidImage is returned when the upload cannot be decoded as an image
	ErrInvalidImage = errors.New("invalid image")

	// ErrImageTooLarge is returned when the upload exceeds the request size limit
	ErrImageTooLarge = errors.New("image too large")

	// ErrUnsupportedFormat is returned for images that are not JPEG, PNG or WEBP
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrAnalysisFailed is returned when the stage-1 call itself could not be completed
	ErrAnalysisFailed = errors.New("image analysis failed")

	// ErrGenerationFailed is returned when the generation call fails
	ErrGenerationFailed = errors.New("roast generation failed")
)

// StageError wraps the failure of one remote stage
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

// Unwrap exposes both the stage sentinel and the cause to errors.Is/As
func (e *StageError) Unwrap() []error {
	switch e.Stage {
	case StageAnalyzing:
		return []error{ErrAnalysisFailed, e.Err}
	case StageGenerating:
		return []error{ErrGenerationFailed, e.Err}
	}
	return []error{e.Err}
}

// Classify maps an error to the category reported to callers
func Classify(err error) pipeline.ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRoastLevel),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidImage),
		errors.Is(err, ErrImageTooLarge),
		errors.Is(err, ErrUnsupportedFormat):
		return pipeline.CodeValidation
	case errors.Is(err, ErrAnalysisFailed):
		return pipeline.CodeAnalysisFailed
	case errors.Is(err, ErrGenerationFailed):
		return pipeline.CodeGenerationFailed
	}
	return pipeline.CodeInternal
}
