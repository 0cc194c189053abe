package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/raine/tori-extract/config"
	"github.com/raine/tori-extract/internal/extraction"
	"github.com/raine/tori-extract/internal/llm"
	"github.com/raine/tori-extract/internal/media"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <video-path> [frame-interval]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY - Required\n")
		fmt.Fprintf(os.Stderr, "  FFMPEG_PATH    - Optional, defaults to ffmpeg\n")
		os.Exit(1)
	}
	config.LoadEnvFile()

	videoPath := os.Args[1]
	interval := 2 * time.Second
	if len(os.Args) >= 3 {
		d, err := time.ParseDuration(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid frame interval: %v\n", err)
			os.Exit(1)
		}
		interval = d
	}

	video, err := os.ReadFile(videoPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read video: %v\n", err)
		os.Exit(1)
	}
	contentType := mime.TypeByExtension(filepath.Ext(videoPath))
	if contentType == "" {
		contentType = "video/mp4"
	}

	ctx := context.Background()

	fmt.Println("=== FRAMES ===")
	extractor := media.NewFFmpegExtractor(os.Getenv("FFMPEG_PATH"), interval, 10)
	frames, err := extractor.ExtractFrames(ctx, video, contentType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error extracting frames: %v\n", err)
		os.Exit(1)
	}
	for _, f := range frames {
		fmt.Printf("%s  t=%.1fs  %d bytes  %s\n", f.ID, f.Timestamp, len(f.Image), f.Hash[:12])
	}

	client, err := llm.NewGeminiClient(ctx, os.Getenv("GEMINI_API_KEY"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating Gemini client: %v\n", err)
		os.Exit(1)
	}
	vision := llm.NewGeminiVision(client)

	fmt.Println("\n=== OBJECTS ===")
	objects, err := vision.DetectObjects(ctx, frames)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error detecting objects: %v\n", err)
		os.Exit(1)
	}
	printJSON(objects)

	fmt.Println("\n=== SELLABLE ITEMS ===")
	items, err := vision.FilterSellable(ctx, objects)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error filtering items: %v\n", err)
		os.Exit(1)
	}
	printJSON(items)
	fmt.Printf("\n%d objects, %d sellable\n", len(objects), len(items))
}

func printJSON(v any) {
	if objects, ok := v.([]extraction.DetectedObject); ok && len(objects) == 0 {
		fmt.Println("(none)")
		return
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}
	fmt.Println(string(out))
}
