package extraction

import (
	"context"
	"fmt"
	"sync"
)

// fakeCollaborators is a test double for every pipeline collaborator.
// Each method can be overridden with a custom function; if not overridden,
// it returns a small deterministic result. Thread-safe.
type fakeCollaborators struct {
	ExtractFramesFunc     func(ctx context.Context, video []byte, contentType string) ([]Frame, error)
	DetectObjectsFunc     func(ctx context.Context, frames []Frame) ([]DetectedObject, error)
	FilterSellableFunc    func(ctx context.Context, objects []DetectedObject) ([]Item, error)
	CreateListingFunc     func(ctx context.Context, item Item) (Listing, error)
	HandleNegotiationFunc func(ctx context.Context, req NegotiationRequest) (string, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeCollaborators) record(method string) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()
}

// Calls returns the recorded method names in call order.
func (f *fakeCollaborators) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCollaborators) ExtractFrames(ctx context.Context, video []byte, contentType string) ([]Frame, error) {
	f.record("ExtractFrames")
	if f.ExtractFramesFunc != nil {
		return f.ExtractFramesFunc(ctx, video, contentType)
	}
	return testFrames(2), nil
}

func (f *fakeCollaborators) DetectObjects(ctx context.Context, frames []Frame) ([]DetectedObject, error) {
	f.record("DetectObjects")
	if f.DetectObjectsFunc != nil {
		return f.DetectObjectsFunc(ctx, frames)
	}
	return []DetectedObject{
		{Name: "sofa", Confidence: 0.9, FrameID: "frame_0"},
		{Name: "lamp", Confidence: 0.8, FrameID: "frame_1"},
		{Name: "wall", Confidence: 0.7, FrameID: "frame_1"},
	}, nil
}

func (f *fakeCollaborators) FilterSellable(ctx context.Context, objects []DetectedObject) ([]Item, error) {
	f.record("FilterSellable")
	if f.FilterSellableFunc != nil {
		return f.FilterSellableFunc(ctx, objects)
	}
	var items []Item
	for _, o := range objects {
		if o.Name == "wall" {
			continue
		}
		items = append(items, Item{
			Name:           o.Name,
			Category:       "furniture",
			EstimatedPrice: 50,
			Condition:      "good",
			Description:    "A " + o.Name,
			FrameID:        o.FrameID,
		})
	}
	return items, nil
}

func (f *fakeCollaborators) CreateListing(ctx context.Context, item Item) (Listing, error) {
	f.record("CreateListing")
	if f.CreateListingFunc != nil {
		return f.CreateListingFunc(ctx, item)
	}
	return Listing{Title: "Used " + item.Name, Price: item.EstimatedPrice}, nil
}

func (f *fakeCollaborators) HandleNegotiation(ctx context.Context, req NegotiationRequest) (string, error) {
	f.record("HandleNegotiation")
	if f.HandleNegotiationFunc != nil {
		return f.HandleNegotiationFunc(ctx, req)
	}
	return fmt.Sprintf("Thanks! The price is %.0f.", req.CurrentPrice), nil
}

func (f *fakeCollaborators) collaborators() Collaborators {
	return Collaborators{Frames: f, Detector: f, Filter: f, Listings: f, Negotiator: f}
}

func testFrames(n int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame{
			ID:        fmt.Sprintf("frame_%d", i),
			Index:     i,
			Timestamp: float64(i) * 2,
			MIMEType:  "image/jpeg",
			Image:     []byte{0xff, 0xd8, byte(i)},
		}
	}
	return frames
}

func testSubmission() Submission {
	return Submission{SourceName: "room.mp4", ContentType: "video/mp4", Data: []byte("fake video bytes")}
}

// recordingNotifier collects finished jobs.
type recordingNotifier struct {
	mu   sync.Mutex
	jobs []Job
}

func (n *recordingNotifier) JobFinished(ctx context.Context, job Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return nil
}

func (n *recordingNotifier) Jobs() []Job {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Job(nil), n.jobs...)
}
