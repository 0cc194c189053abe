package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// FrameExtractor turns raw video bytes into an ordered list of frames.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, video []byte, contentType string) ([]Frame, error)
}

// ObjectDetector finds objects in frames. Results are unfiltered.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, frames []Frame) ([]DetectedObject, error)
}

// SellabilityFilter drops non-sellable detections and prices the rest.
type SellabilityFilter interface {
	FilterSellable(ctx context.Context, objects []DetectedObject) ([]Item, error)
}

// ListingGenerator writes a marketplace listing for one item.
type ListingGenerator interface {
	CreateListing(ctx context.Context, item Item) (Listing, error)
}

// NegotiationRequest is an inbound counter-offer on a listing.
type NegotiationRequest struct {
	ListingID    string
	BuyerMessage string
	CurrentPrice float64
}

// Negotiator drafts a reply to a buyer's counter-offer.
type Negotiator interface {
	HandleNegotiation(ctx context.Context, req NegotiationRequest) (string, error)
}

// pipelineInput is the payload handed from a submission to its run.
type pipelineInput struct {
	Video       []byte
	ContentType string
}

// Pipeline runs the extraction stages in order and records their output.
type Pipeline struct {
	store        *Store
	frames       FrameExtractor
	detector     ObjectDetector
	filter       SellabilityFilter
	stageTimeout time.Duration
}

// NewPipeline creates a pipeline writing into store.
func NewPipeline(store *Store, frames FrameExtractor, detector ObjectDetector, filter SellabilityFilter, stageTimeout time.Duration) *Pipeline {
	return &Pipeline{
		store:        store,
		frames:       frames,
		detector:     detector,
		filter:       filter,
		stageTimeout: stageTimeout,
	}
}

// Run executes frame extraction, detection and filtering for a job that is
// already processing. It stops at the first failing stage.
func (p *Pipeline) Run(ctx context.Context, jobID string, in pipelineInput) error {
	frames, err := runStage(ctx, StageFrameExtraction, p.stageTimeout, func(ctx context.Context) ([]Frame, error) {
		return p.frames.ExtractFrames(ctx, in.Video, in.ContentType)
	})
	if err != nil {
		return err
	}
	if _, err := p.store.Update(jobID, func(j *Job) error {
		if err := requireProcessing(j); err != nil {
			return err
		}
		j.Frames = frames
		j.advance(ProgressFrames)
		return nil
	}); err != nil {
		return err
	}
	log.Debug().Str("jobID", jobID).Int("frameCount", len(frames)).Msg("frames extracted")

	objects, err := runStage(ctx, StageObjectDetection, p.stageTimeout, func(ctx context.Context) ([]DetectedObject, error) {
		return p.detector.DetectObjects(ctx, frames)
	})
	if err != nil {
		return err
	}
	if _, err := p.store.Update(jobID, func(j *Job) error {
		if err := requireProcessing(j); err != nil {
			return err
		}
		j.advance(ProgressDetected)
		return nil
	}); err != nil {
		return err
	}
	log.Debug().Str("jobID", jobID).Int("objectCount", len(objects)).Msg("objects detected")

	items, err := runStage(ctx, StageSellability, p.stageTimeout, func(ctx context.Context) ([]Item, error) {
		return p.filter.FilterSellable(ctx, objects)
	})
	if err != nil {
		return err
	}
	if _, err := p.store.Update(jobID, func(j *Job) error {
		if err := requireProcessing(j); err != nil {
			return err
		}
		for _, it := range items {
			it.Source = ItemSourcePipeline
			if f := j.FrameByID(it.FrameID); f != nil && it.Timestamp == 0 {
				it.Timestamp = f.Timestamp
			}
			appendItem(j, it)
		}
		j.advance(ProgressFiltered)
		return nil
	}); err != nil {
		return err
	}
	log.Debug().Str("jobID", jobID).Int("itemCount", len(items)).Msg("sellable items stored")

	return nil
}

func requireProcessing(j *Job) error {
	if j.Status != StatusProcessing {
		return fmt.Errorf("%w: job is %s", ErrInvalidTransition, j.Status)
	}
	return nil
}

// runStage calls fn under a per-stage timeout. A collaborator that ignores
// its context cannot hold the caller past the deadline. Cancellation of the
// parent context is returned as-is; everything else becomes a StageError.
func runStage[T any](ctx context.Context, stage Stage, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	var (
		stageCtx context.Context
		cancel   context.CancelFunc
	)
	if timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		stageCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(stageCtx)
		ch <- result{value: v, err: err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-stageCtx.Done():
		r.err = stageCtx.Err()
	}

	if r.err == nil {
		return r.value, nil
	}
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return zero, &StageError{Stage: stage, Err: r.err, TimedOut: true, Timeout: timeout}
	}
	return zero, &StageError{Stage: stage, Err: r.err}
}
