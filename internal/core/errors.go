package core

import (
	"errors"
	"fmt"

	"storyforge.io/server/internal/world"
)

var (
	// ErrGenerationFailed marks empty or non-conforming model output. Nothing
	// partial is persisted when it is returned.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEmptyResponse is a content-validation failure: the model returned no text.
	ErrEmptyResponse = errors.New("model returned empty content")
	ErrNotFound      = errors.New("not found")
	ErrPersistence   = errors.New("persistence failed")
	ErrRetrieval     = errors.New("similarity index unavailable")
	ErrInvalidInput  = errors.New("invalid input")
)

// GenerationError records which pipeline stage failed.
type GenerationError struct {
	Stage world.Stage
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailed, e.Err}
}
