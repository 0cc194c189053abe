package extraction

import (
	"mime"
	"strings"
)

// Submission is an uploaded video waiting to be processed.
type Submission struct {
	SourceName  string
	ContentType string
	Data        []byte
}

// ValidateSubmission checks that sub looks like a video within the size
// ceiling. maxBytes <= 0 disables the size check.
func ValidateSubmission(sub Submission, maxBytes int64) error {
	if len(sub.Data) == 0 {
		return validationErrorf("file", "file is empty")
	}

	mediaType, _, err := mime.ParseMediaType(sub.ContentType)
	if err != nil || !strings.HasPrefix(mediaType, "video/") {
		return &ValidationError{Field: "file", Message: "file must be a video"}
	}

	if maxBytes > 0 && int64(len(sub.Data)) > maxBytes {
		return validationErrorf("file", "file size must be less than %dMB", maxBytes/(1024*1024))
	}
	return nil
}

// ManualItem is a hand-entered item for a job's frame.
type ManualItem struct {
	FrameID   string
	Name      string
	Category  string
	Price     float64
	Condition string
}

const defaultCondition = "good"

func validateManualItem(m ManualItem) error {
	if strings.TrimSpace(m.Name) == "" {
		return validationErrorf("item_name", "item name is required")
	}
	if m.Price < 0 {
		return validationErrorf("price", "price must not be negative")
	}
	return nil
}

func validateNegotiation(req NegotiationRequest) error {
	if strings.TrimSpace(req.BuyerMessage) == "" {
		return validationErrorf("buyer_message", "buyer message is required")
	}
	if req.CurrentPrice < 0 {
		return validationErrorf("current_price", "price must not be negative")
	}
	return nil
}
