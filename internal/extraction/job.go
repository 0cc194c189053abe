package extraction

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an extraction job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions can happen from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress checkpoints reported to pollers.
const (
	ProgressQueued    = 0
	ProgressStarted   = 10
	ProgressFrames    = 30
	ProgressDetected  = 60
	ProgressFiltered  = 80
	ProgressCompleted = 100
)

// Item sources.
const (
	ItemSourcePipeline = "pipeline"
	ItemSourceManual   = "manual"
)

// Frame is a still image extracted from the uploaded video.
type Frame struct {
	ID        string  `json:"id"`
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"` // Seconds from the start of the video
	MIMEType  string  `json:"mime_type"`
	Hash      string  `json:"hash"`
	Image     []byte  `json:"image,omitempty"`
}

// DetectedObject is a raw, unfiltered detection from the vision model.
type DetectedObject struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Brand       string  `json:"brand,omitempty"`
	Condition   string  `json:"condition,omitempty"`
	Confidence  float64 `json:"confidence"`
	FrameID     string  `json:"frame_id"`
	Timestamp   float64 `json:"timestamp"`
}

// Item is a sellable item extracted from a video or added by hand.
type Item struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	EstimatedPrice float64 `json:"estimated_price"`
	Condition      string  `json:"condition"`
	Description    string  `json:"description"`
	FrameID        string  `json:"frame_id"`
	Timestamp      float64 `json:"timestamp"`
	Source         string  `json:"source"`
}

// Listing is a marketplace-ready listing generated for one item.
type Listing struct {
	ID          string   `json:"id"`
	ItemID      string   `json:"item_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Category    string   `json:"category"`
	Condition   string   `json:"condition"`
	Keywords    []string `json:"keywords"`
}

// SubmissionMeta describes an uploaded artifact.
type SubmissionMeta struct {
	SourceName  string
	ContentType string
	Size        int64
}

// Job is the record of one extraction run. Values returned from the Store
// are snapshots; modifying them has no effect on the stored record.
type Job struct {
	ID          string    `json:"job_id"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	SourceName  string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Frames      []Frame   `json:"frames"`
	Items       []Item    `json:"items"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// FrameByID returns the frame with the given ID, or nil.
func (j *Job) FrameByID(id string) *Frame {
	for i := range j.Frames {
		if j.Frames[i].ID == id {
			return &j.Frames[i]
		}
	}
	return nil
}

// transition moves the job to the next status. Only the edges
// pending->processing and processing->{completed,failed} are allowed.
func (j *Job) transition(to Status) error {
	ok := false
	switch j.Status {
	case StatusPending:
		ok = to == StatusProcessing
	case StatusProcessing:
		ok = to == StatusCompleted || to == StatusFailed
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

// advance raises progress to p. Lower values are ignored so progress never
// moves backwards.
func (j *Job) advance(p int) {
	if p > ProgressCompleted {
		p = ProgressCompleted
	}
	if p > j.Progress {
		j.Progress = p
	}
}

// start marks the job as processing.
func (j *Job) start() error {
	if err := j.transition(StatusProcessing); err != nil {
		return err
	}
	j.advance(ProgressStarted)
	return nil
}

// complete marks the job as completed.
func (j *Job) complete(now time.Time) error {
	if err := j.transition(StatusCompleted); err != nil {
		return err
	}
	j.Progress = ProgressCompleted
	j.FinishedAt = now
	return nil
}

// fail marks the job as failed. Progress stays at the last checkpoint.
func (j *Job) fail(msg string, now time.Time) error {
	if msg == "" {
		msg = "unknown error"
	}
	if err := j.transition(StatusFailed); err != nil {
		return err
	}
	j.Error = msg
	j.FinishedAt = now
	return nil
}

// clone returns a deep copy of the job.
func (j Job) clone() Job {
	out := j
	if j.Frames != nil {
		out.Frames = make([]Frame, len(j.Frames))
		for i, f := range j.Frames {
			if f.Image != nil {
				f.Image = append([]byte(nil), f.Image...)
			}
			out.Frames[i] = f
		}
	}
	if j.Items != nil {
		out.Items = append([]Item(nil), j.Items...)
	}
	return out
}
