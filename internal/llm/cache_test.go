package llm

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/raine/tori-extract/internal/extraction"
	"github.com/raine/tori-extract/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCachedAnalyzer_DetectObjects(t *testing.T) {
	inner := &countingAnalyzer{}
	c := NewCachedAnalyzer(inner, newTestCache(t))
	ctx := context.Background()

	first, err := c.DetectObjects(ctx, testFrames())
	require.NoError(t, err)
	second, err := c.DetectObjects(ctx, testFrames())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.detectCalls)

	other := testFrames()
	other[1].Image = []byte{0xff, 0xd8, 0x03}
	_, err = c.DetectObjects(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.detectCalls)
}

func TestCachedAnalyzer_FilterSellable(t *testing.T) {
	inner := &countingAnalyzer{}
	c := NewCachedAnalyzer(inner, newTestCache(t))
	objects := []extraction.DetectedObject{{Name: "sofa", FrameID: "frame_0"}}

	for i := 0; i < 3; i++ {
		items, err := c.FilterSellable(context.Background(), objects)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 120.0, items[0].EstimatedPrice)
	}
	assert.Equal(t, 1, inner.filterCalls)
}

func TestCachedAnalyzer_ErrorsAreNotCached(t *testing.T) {
	inner := &countingAnalyzer{err: errors.New("boom")}
	c := NewCachedAnalyzer(inner, newTestCache(t))

	_, err := c.DetectObjects(context.Background(), testFrames())
	assert.Error(t, err)
	_, err = c.DetectObjects(context.Background(), testFrames())
	assert.Error(t, err)
	assert.Equal(t, 2, inner.detectCalls)
}

func TestCachedAnalyzer_NilStore(t *testing.T) {
	inner := &countingAnalyzer{}
	c := NewCachedAnalyzer(inner, nil)

	_, err := c.DetectObjects(context.Background(), testFrames())
	require.NoError(t, err)
	_, err = c.DetectObjects(context.Background(), testFrames())
	require.NoError(t, err)
	assert.Equal(t, 2, inner.detectCalls)
}

func TestHashFrames_BoundaryCollision(t *testing.T) {
	a := []extraction.Frame{{Image: []byte("ab")}, {Image: []byte("c")}}
	b := []extraction.Frame{{Image: []byte("a")}, {Image: []byte("bc")}}
	assert.NotEqual(t, hashFrames(a), hashFrames(b))
}
