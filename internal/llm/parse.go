package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/raine/tori-extract/internal/extraction"
)

// extractJSONObject extracts a JSON object from text that may contain markdown
// code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

func parseDetections(text string, frames []extraction.Frame) ([]extraction.DetectedObject, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse detection JSON: %w", err)
	}

	var resp struct {
		Objects []extraction.DetectedObject `json:"objects"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse detection JSON: %w (response: %s)", err, jsonStr)
	}

	byID := make(map[string]extraction.Frame, len(frames))
	for _, f := range frames {
		byID[f.ID] = f
	}

	objects := make([]extraction.DetectedObject, 0, len(resp.Objects))
	for _, o := range resp.Objects {
		o.Name = strings.TrimSpace(o.Name)
		if o.Name == "" {
			continue
		}
		o.Confidence = math.Max(0, math.Min(1, o.Confidence))
		f, ok := byID[o.FrameID]
		if !ok && len(frames) > 0 {
			// models occasionally invent frame ids
			f = frames[0]
			o.FrameID = f.ID
		}
		o.Timestamp = f.Timestamp
		objects = append(objects, o)
	}
	return objects, nil
}

func parseSellable(text string) ([]extraction.Item, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sellability JSON: %w", err)
	}

	var resp struct {
		Items []extraction.Item `json:"items"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse sellability JSON: %w (response: %s)", err, jsonStr)
	}

	items := make([]extraction.Item, 0, len(resp.Items))
	for _, it := range resp.Items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			continue
		}
		// ids and provenance are assigned by the store
		it.ID = ""
		it.Source = ""
		it.EstimatedPrice = math.Max(0, math.Round(it.EstimatedPrice*100)/100)
		if it.Category == "" {
			it.Category = "Other"
		}
		if it.Condition == "" {
			it.Condition = "good"
		}
		items = append(items, it)
	}
	return items, nil
}

type listingResponse struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Keywords    []string `json:"keywords"`
}

func parseListing(text string) (listingResponse, error) {
	var resp listingResponse
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return resp, fmt.Errorf("failed to parse listing JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return resp, fmt.Errorf("failed to parse listing JSON: %w (response: %s)", err, jsonStr)
	}
	resp.Title = strings.TrimSpace(resp.Title)
	resp.Description = strings.TrimSpace(resp.Description)
	return resp, nil
}
