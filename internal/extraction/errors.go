package extraction

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrJobNotFound         = errors.New("job not found")
	ErrPipelineNotComplete = errors.New("extraction not completed yet")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrShuttingDown        = errors.New("orchestrator is shutting down")
)

// ValidationError is returned when a request is rejected at the boundary.
// No job is created for a rejected submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func validationErrorf(field, format string, a ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, a...)}
}

// Stage names a step of the extraction pipeline or a collaborator call.
type Stage string

const (
	StageFrameExtraction   Stage = "frame extraction"
	StageObjectDetection   Stage = "object detection"
	StageSellability       Stage = "sellability filtering"
	StageListingGeneration Stage = "listing generation"
	StageNegotiation       Stage = "negotiation"
)

// StageError wraps a failed or timed out collaborator call.
type StageError struct {
	Stage    Stage
	Err      error
	TimedOut bool
	Timeout  time.Duration
}

func (e *StageError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out after %s", e.Stage, e.Timeout)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
