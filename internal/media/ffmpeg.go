package media

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/raine/tori-extract/internal/extraction"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

const (
	defaultInterval  = 2 * time.Second
	defaultMaxFrames = 10
	framePattern     = "frame_%04d.jpg"
	maxStderrBytes   = 512
)

// FFmpegExtractor samples still frames from a video by shelling out to
// ffmpeg.
type FFmpegExtractor struct {
	path      string
	interval  time.Duration
	maxFrames int
}

// NewFFmpegExtractor creates an extractor that takes one frame every interval,
// up to maxFrames frames.
func NewFFmpegExtractor(path string, interval time.Duration, maxFrames int) *FFmpegExtractor {
	if path == "" {
		path = "ffmpeg"
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	if maxFrames <= 0 {
		maxFrames = defaultMaxFrames
	}
	return &FFmpegExtractor{path: path, interval: interval, maxFrames: maxFrames}
}

// Available reports whether the ffmpeg binary can be found.
func (e *FFmpegExtractor) Available() error {
	if _, err := exec.LookPath(e.path); err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", e.path, err)
	}
	return nil
}

// ExtractFrames writes video to a scratch directory, runs ffmpeg over it and
// returns the sampled JPEG frames in order.
func (e *FFmpegExtractor) ExtractFrames(ctx context.Context, video []byte, contentType string) ([]extraction.Frame, error) {
	dir, err := os.MkdirTemp("", "tori-extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input"+videoExtension(contentType))
	if err := os.WriteFile(input, video, 0600); err != nil {
		return nil, fmt.Errorf("failed to write video: %w", err)
	}

	start := time.Now()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path, e.buildArgs(input, dir)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), maxStderrBytes))
	}

	frames, err := readFrames(dir, e.interval)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames could be extracted from video")
	}

	log.Debug().
		Int("frameCount", len(frames)).
		Dur("interval", e.interval).
		Dur("elapsed", time.Since(start)).
		Msg("ffmpeg frame extraction")

	return frames, nil
}

func (e *FFmpegExtractor) buildArgs(input, outDir string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", input,
		"-vf", "fps=1/" + strconv.FormatFloat(e.interval.Seconds(), 'f', -1, 64),
		"-frames:v", strconv.Itoa(e.maxFrames),
		"-q:v", "3",
		filepath.Join(outDir, framePattern),
	}
}

// readFrames loads the numbered JPEGs ffmpeg wrote into dir.
func readFrames(dir string, interval time.Duration) ([]extraction.Frame, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	sort.Strings(matches)

	frames := make([]extraction.Frame, 0, len(matches))
	for i, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read frame %s: %w", filepath.Base(path), err)
		}
		frames = append(frames, extraction.Frame{
			ID:        fmt.Sprintf("frame_%d", i),
			Index:     i,
			Timestamp: float64(i) * interval.Seconds(),
			MIMEType:  "image/jpeg",
			Hash:      HashBytes(data),
			Image:     data,
		})
	}
	return frames, nil
}

// HashBytes returns the hex BLAKE2b-256 digest of data.
func HashBytes(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func videoExtension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	switch mediaType {
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
