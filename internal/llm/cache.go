package llm

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/raine/tori-extract/internal/extraction"
	"github.com/raine/tori-extract/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

// VisionAnalyzer is both pipeline analysis stages.
type VisionAnalyzer interface {
	extraction.ObjectDetector
	extraction.SellabilityFilter
}

// CachedAnalyzer wraps a VisionAnalyzer with a persistent cache. Re-uploading
// the same video skips the model calls.
type CachedAnalyzer struct {
	inner VisionAnalyzer
	store storage.AnalysisCache
}

// NewCachedAnalyzer creates a cached analyzer. A nil store disables caching.
func NewCachedAnalyzer(inner VisionAnalyzer, store storage.AnalysisCache) *CachedAnalyzer {
	return &CachedAnalyzer{inner: inner, store: store}
}

// hashFrames hashes the frame images. Includes a length prefix for each frame
// to prevent boundary collisions.
func hashFrames(frames []extraction.Frame) string {
	h, _ := blake2b.New256(nil)
	for _, f := range frames {
		binary.Write(h, binary.LittleEndian, int64(len(f.Image)))
		h.Write(f.Image)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashObjects(objects []extraction.DetectedObject) (string, error) {
	data, err := json.Marshal(objects)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DetectObjects implements extraction.ObjectDetector with caching.
func (c *CachedAnalyzer) DetectObjects(ctx context.Context, frames []extraction.Frame) ([]extraction.DetectedObject, error) {
	key := hashFrames(frames)

	var cached []extraction.DetectedObject
	if c.lookup(storage.KindDetection, key, &cached) {
		return cached, nil
	}

	objects, err := c.inner.DetectObjects(ctx, frames)
	if err != nil {
		return nil, err
	}
	c.save(storage.KindDetection, key, objects)
	return objects, nil
}

// FilterSellable implements extraction.SellabilityFilter with caching.
func (c *CachedAnalyzer) FilterSellable(ctx context.Context, objects []extraction.DetectedObject) ([]extraction.Item, error) {
	key, err := hashObjects(objects)
	if err != nil {
		return c.inner.FilterSellable(ctx, objects)
	}

	var cached []extraction.Item
	if c.lookup(storage.KindSellability, key, &cached) {
		return cached, nil
	}

	items, err := c.inner.FilterSellable(ctx, objects)
	if err != nil {
		return nil, err
	}
	c.save(storage.KindSellability, key, items)
	return items, nil
}

func (c *CachedAnalyzer) lookup(kind, key string, dst any) bool {
	if c.store == nil {
		return false
	}
	entry, err := c.store.GetAnalysis(kind, key)
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("failed to check analysis cache")
		return false
	}
	if entry == nil {
		return false
	}
	if err := json.Unmarshal(entry.Payload, dst); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("discarding unreadable analysis cache entry")
		return false
	}
	log.Debug().Str("kind", kind).Str("hash", key[:16]).Msg("analysis cache hit")
	return true
}

func (c *CachedAnalyzer) save(kind, key string, value any) {
	if c.store == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("failed to encode analysis result")
		return
	}
	if err := c.store.SetAnalysis(kind, key, payload); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("failed to cache analysis result")
		return
	}
	log.Debug().Str("kind", kind).Str("hash", key[:16]).Msg("cached analysis result")
}
