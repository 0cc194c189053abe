package llm

import (
	"context"
	"sync"

	"github.com/raine/tori-extract/internal/extraction"
	"google.golang.org/genai"
)

// fakeModels records GenerateContent calls and replies with a canned text.
type fakeModels struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	model   string
	parts   []*genai.Part
	config  *genai.GenerateContentConfig
	noParts bool
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.model = model
	f.config = config
	if len(contents) > 0 {
		f.parts = contents[0].Parts
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.noParts {
		return &genai.GenerateContentResponse{}, nil
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}, Role: genai.RoleModel},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     1000,
			CandidatesTokenCount: 200,
			TotalTokenCount:      1200,
		},
	}, nil
}

// fakeText is a TextGenerator returning a canned reply.
type fakeText struct {
	reply  string
	err    error
	system string
	prompt string
}

func (f *fakeText) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.system = system
	f.prompt = prompt
	return f.reply, f.err
}

// countingAnalyzer counts calls to the wrapped analysis stages.
type countingAnalyzer struct {
	mu          sync.Mutex
	detectCalls int
	filterCalls int
	err         error
}

func (a *countingAnalyzer) DetectObjects(ctx context.Context, frames []extraction.Frame) ([]extraction.DetectedObject, error) {
	a.mu.Lock()
	a.detectCalls++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return []extraction.DetectedObject{{Name: "sofa", Confidence: 0.9, FrameID: frames[0].ID}}, nil
}

func (a *countingAnalyzer) FilterSellable(ctx context.Context, objects []extraction.DetectedObject) ([]extraction.Item, error) {
	a.mu.Lock()
	a.filterCalls++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return []extraction.Item{{Name: objects[0].Name, Category: "Furniture", EstimatedPrice: 120, FrameID: objects[0].FrameID}}, nil
}

func testFrames() []extraction.Frame {
	return []extraction.Frame{
		{ID: "frame_0", Index: 0, Timestamp: 0, MIMEType: "image/jpeg", Image: []byte{0xff, 0xd8, 0x01}},
		{ID: "frame_1", Index: 1, Timestamp: 2, MIMEType: "image/jpeg", Image: []byte{0xff, 0xd8, 0x02}},
	}
}
