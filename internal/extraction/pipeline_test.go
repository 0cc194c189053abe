package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStage(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		v, err := runStage(context.Background(), StageNegotiation, time.Second, func(ctx context.Context) (string, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})

	t.Run("error is wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := runStage(context.Background(), StageObjectDetection, 0, func(ctx context.Context) (int, error) {
			return 0, boom
		})
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.False(t, stageErr.TimedOut)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "object detection failed: boom", err.Error())
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := runStage(context.Background(), StageListingGeneration, 20*time.Millisecond, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.True(t, stageErr.TimedOut)
		assert.Equal(t, "listing generation timed out after 20ms", err.Error())
	})

	t.Run("parent cancellation is not a stage error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := runStage(ctx, StageFrameExtraction, time.Second, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
		var stageErr *StageError
		assert.False(t, errors.As(err, &stageErr))
	})
}

func TestPipelineRun_StopsWhenJobNoLongerProcessing(t *testing.T) {
	store := NewStore()
	job := store.Create(SubmissionMeta{})
	_, err := store.Update(job.ID, (*Job).start)
	require.NoError(t, err)

	fake := &fakeCollaborators{}
	fake.ExtractFramesFunc = func(ctx context.Context, video []byte, contentType string) ([]Frame, error) {
		_, err := store.Update(job.ID, func(j *Job) error { return j.fail("job cancelled", time.Now()) })
		require.NoError(t, err)
		return testFrames(1), nil
	}
	p := NewPipeline(store, fake, fake, fake, time.Second)

	err = p.Run(context.Background(), job.ID, pipelineInput{Video: []byte("v"), ContentType: "video/mp4"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Empty(t, got.Frames)
	assert.Equal(t, []string{"ExtractFrames"}, fake.Calls())
}
