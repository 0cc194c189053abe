package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxConcurrentJobs  = 4
	defaultListingConcurrency = 4
	notifyTimeout             = 10 * time.Second
	pruneInterval             = 10 * time.Minute
)

var errJobCancelled = errors.New("job cancelled")

// Notifier is told about every job that reaches a terminal state.
type Notifier interface {
	JobFinished(ctx context.Context, job Job) error
}

// Collaborators are the external analysis capabilities used by the
// orchestrator.
type Collaborators struct {
	Frames     FrameExtractor
	Detector   ObjectDetector
	Filter     SellabilityFilter
	Listings   ListingGenerator
	Negotiator Negotiator
}

// Config controls the orchestrator's limits. Zero values pick defaults or
// disable the corresponding limit.
type Config struct {
	MaxConcurrentJobs  int64
	ListingConcurrency int
	StageTimeout       time.Duration
	JobTimeout         time.Duration
	MaxUploadBytes     int64
	Retention          time.Duration
}

// run is the handle of one in-flight pipeline execution.
type run struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Orchestrator schedules pipeline runs off the request path and drives each
// job through pending -> processing -> completed|failed.
type Orchestrator struct {
	store      *Store
	pipeline   *Pipeline
	listings   ListingGenerator
	negotiator Negotiator
	notifier   Notifier
	cfg        Config
	sem        *semaphore.Weighted

	baseCtx context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

// NewOrchestrator creates an orchestrator over store.
func NewOrchestrator(store *Store, c Collaborators, cfg Config) *Orchestrator {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if cfg.ListingConcurrency <= 0 {
		cfg.ListingConcurrency = defaultListingConcurrency
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		store:      store,
		pipeline:   NewPipeline(store, c.Frames, c.Detector, c.Filter, cfg.StageTimeout),
		listings:   c.Listings,
		negotiator: c.Negotiator,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrentJobs),
		baseCtx:    baseCtx,
		stop:       stop,
		runs:       make(map[string]*run),
	}
}

// SetNotifier registers a notifier for terminal outcomes.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifier = n
}

// Submit validates sub, creates a pending job and schedules its pipeline.
// It returns as soon as the job is recorded.
func (o *Orchestrator) Submit(sub Submission) (Job, error) {
	if err := ValidateSubmission(sub, o.cfg.MaxUploadBytes); err != nil {
		return Job{}, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Job{}, ErrShuttingDown
	}
	job := o.store.Create(SubmissionMeta{
		SourceName:  sub.SourceName,
		ContentType: sub.ContentType,
		Size:        int64(len(sub.Data)),
	})
	runCtx, cancel := context.WithCancelCause(o.baseCtx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	o.runs[job.ID] = r
	o.wg.Add(1)
	o.mu.Unlock()

	log.Info().
		Str("jobID", job.ID).
		Str("filename", sub.SourceName).
		Int("sizeBytes", len(sub.Data)).
		Msg("extraction job submitted")

	go o.execute(runCtx, job.ID, pipelineInput{Video: sub.Data, ContentType: sub.ContentType}, r)

	return job, nil
}

// execute owns a single job from the moment a worker slot is free until the
// job is terminal.
func (o *Orchestrator) execute(ctx context.Context, jobID string, in pipelineInput, r *run) {
	started := time.Now()
	defer o.wg.Done()
	defer close(r.done)
	defer func() {
		o.mu.Lock()
		delete(o.runs, jobID)
		o.mu.Unlock()
		r.cancel(nil)
	}()

	if o.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, o.cfg.JobTimeout, fmt.Errorf("job timed out after %s", o.cfg.JobTimeout))
		defer cancel()
	}

	acquireErr := o.sem.Acquire(ctx, 1)
	if acquireErr == nil {
		defer o.sem.Release(1)
	}

	if _, err := o.store.Update(jobID, (*Job).start); err != nil {
		log.Error().Err(err).Str("jobID", jobID).Msg("failed to start extraction job")
		return
	}

	runErr := acquireErr
	if runErr == nil {
		runErr = o.runPipeline(ctx, jobID, in)
	}
	o.finish(ctx, jobID, runErr, time.Since(started))
}

// runPipeline shields the orchestrator from panics inside the pipeline.
func (o *Orchestrator) runPipeline(ctx context.Context, jobID string, in pipelineInput) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("jobID", jobID).Interface("panic", r).Msg("extraction pipeline panicked")
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return o.pipeline.Run(ctx, jobID, in)
}

func (o *Orchestrator) finish(ctx context.Context, jobID string, runErr error, elapsed time.Duration) {
	now := time.Now()
	job, err := o.store.Update(jobID, func(j *Job) error {
		if runErr == nil {
			return j.complete(now)
		}
		return j.fail(failureMessage(ctx, runErr), now)
	})
	if err != nil {
		log.Error().Err(err).Str("jobID", jobID).Msg("failed to finish extraction job")
		return
	}

	if job.Status == StatusCompleted {
		log.Info().
			Str("jobID", jobID).
			Int("frameCount", len(job.Frames)).
			Int("itemCount", len(job.Items)).
			Dur("elapsed", elapsed).
			Msg("extraction job completed")
	} else {
		log.Warn().
			Str("jobID", jobID).
			Str("error", job.Error).
			Int("progress", job.Progress).
			Dur("elapsed", elapsed).
			Msg("extraction job failed")
	}

	o.mu.Lock()
	notifier := o.notifier
	o.mu.Unlock()
	if notifier != nil {
		nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := notifier.JobFinished(nctx, job); err != nil {
			log.Warn().Err(err).Str("jobID", jobID).Msg("failed to notify job outcome")
		}
	}
}

// failureMessage renders the error stored on a failed job. Stage errors
// carry their own text; cancellation and job timeouts use the cause
// attached to the job context.
func failureMessage(ctx context.Context, err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Error()
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return context.Cause(ctx).Error()
	}
	return err.Error()
}

// Status returns a snapshot of the job. It never waits on pipeline work.
func (o *Orchestrator) Status(jobID string) (Job, error) {
	return o.store.Get(jobID)
}

// Wait blocks until the job's run has finished or ctx is done, and returns
// the latest snapshot.
func (o *Orchestrator) Wait(ctx context.Context, jobID string) (Job, error) {
	o.mu.Lock()
	r, ok := o.runs[jobID]
	o.mu.Unlock()
	if ok {
		select {
		case <-r.done:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
	return o.store.Get(jobID)
}

// Cancel asks the job's run to stop. The job ends up failed with a
// "job cancelled" error. Cancelling a finished job is a no-op.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	r, ok := o.runs[jobID]
	o.mu.Unlock()
	if !ok {
		_, err := o.store.Get(jobID)
		return err
	}
	log.Info().Str("jobID", jobID).Msg("cancelling extraction job")
	r.cancel(errJobCancelled)
	return nil
}

// Shutdown stops accepting jobs, cancels every in-flight run and waits for
// them to record their outcome.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	runs := make([]*run, 0, len(o.runs))
	for _, r := range o.runs {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	log.Info().Int("inFlight", len(runs)).Msg("shutting down orchestrator")
	for _, r := range runs {
		r.cancel(errJobCancelled)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.stop()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunJanitor prunes old terminal jobs until ctx is cancelled. It returns
// immediately when retention is disabled.
func (o *Orchestrator) RunJanitor(ctx context.Context) {
	if o.cfg.Retention <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.store.Prune(o.cfg.Retention); n > 0 {
				log.Info().Int("pruned", n).Msg("pruned finished extraction jobs")
			}
		}
	}
}

// GenerateListings creates one listing per item of a completed job, in item
// order. Listings are regenerated on every call.
func (o *Orchestrator) GenerateListings(ctx context.Context, jobID string) ([]Listing, error) {
	job, err := o.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", ErrPipelineNotComplete, jobID, job.Status)
	}

	listings := make([]Listing, len(job.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ListingConcurrency)
	for i, item := range job.Items {
		g.Go(func() error {
			listing, err := runStage(gctx, StageListingGeneration, o.cfg.StageTimeout, func(ctx context.Context) (Listing, error) {
				return o.listings.CreateListing(ctx, item)
			})
			if err != nil {
				return err
			}
			if listing.ID == "" {
				listing.ID = "listing_" + item.ID
			}
			listing.ItemID = item.ID
			listings[i] = listing
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().Str("jobID", jobID).Int("listingCount", len(listings)).Msg("listings generated")
	return listings, nil
}

// Negotiate drafts a reply to a buyer's counter-offer. It has no effect on
// any job.
func (o *Orchestrator) Negotiate(ctx context.Context, req NegotiationRequest) (string, error) {
	if err := validateNegotiation(req); err != nil {
		return "", err
	}
	return runStage(ctx, StageNegotiation, o.cfg.StageTimeout, func(ctx context.Context) (string, error) {
		return o.negotiator.HandleNegotiation(ctx, req)
	})
}

// AddManualItem appends a hand-entered item to the job.
func (o *Orchestrator) AddManualItem(jobID string, m ManualItem) (Item, error) {
	if err := validateManualItem(m); err != nil {
		return Item{}, err
	}
	condition := strings.TrimSpace(m.Condition)
	if condition == "" {
		condition = defaultCondition
	}
	name := strings.TrimSpace(m.Name)

	var added Item
	_, err := o.store.Update(jobID, func(j *Job) error {
		item := Item{
			Name:           name,
			Category:       m.Category,
			EstimatedPrice: m.Price,
			Condition:      condition,
			Description:    fmt.Sprintf("A %s in %s condition", name, condition),
			FrameID:        m.FrameID,
			Source:         ItemSourceManual,
		}
		if f := j.FrameByID(m.FrameID); f != nil {
			item.Timestamp = f.Timestamp
		}
		added = appendItem(j, item)
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	return added, nil
}

// JobCount returns the number of jobs currently held in the store.
func (o *Orchestrator) JobCount() int {
	return o.store.Len()
}
