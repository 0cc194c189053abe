package api

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/raine/tori-extract/internal/extraction"
)

// multipartOverhead is the slack allowed on top of the upload ceiling for
// multipart framing.
const multipartOverhead = 1 << 20

type uploadResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type statusResponse struct {
	Success  bool               `json:"success"`
	JobID    string             `json:"job_id"`
	Status   extraction.Status  `json:"status"`
	Progress int                `json:"progress"`
	Filename string             `json:"filename"`
	Frames   []extraction.Frame `json:"frames"`
	Items    []extraction.Item  `json:"items"`
	Error    *string            `json:"error"`
}

type listingsResponse struct {
	Success  bool                 `json:"success"`
	Listings []extraction.Listing `json:"listings"`
	Message  string               `json:"message"`
}

type negotiateResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Message  string `json:"message"`
}

type manualItemResponse struct {
	Success bool            `json:"success"`
	Item    extraction.Item `json:"item"`
	Message string          `json:"message"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "jobs": deps.Service.JobCount()})
	}
}

func handleUploadVideo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes+multipartOverhead)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				httpError(w, http.StatusBadRequest, "File size must be less than %dMB", deps.MaxUploadBytes/(1024*1024))
				return
			}
			httpError(w, http.StatusBadRequest, "file is required: %v", err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "failed to read upload: %v", err)
			return
		}

		job, err := deps.Service.Submit(extraction.Submission{
			SourceName:  header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
		if err != nil {
			writeServiceError(w, err, "Error processing video")
			return
		}

		writeJSON(w, http.StatusOK, uploadResponse{
			Success: true,
			JobID:   job.ID,
			Message: "Video upload started. Use the job ID to check extraction status.",
		})
	}
}

func handleExtractionStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Service.Status(chi.URLParam(r, "jobID"))
		if err != nil {
			writeServiceError(w, err, "Error reading job")
			return
		}

		resp := statusResponse{
			Success:  true,
			JobID:    job.ID,
			Status:   job.Status,
			Progress: job.Progress,
			Filename: job.SourceName,
			Frames:   job.Frames,
			Items:    job.Items,
		}
		if resp.Frames == nil {
			resp.Frames = []extraction.Frame{}
		}
		if resp.Items == nil {
			resp.Items = []extraction.Item{}
		}
		if job.Error != "" {
			resp.Error = &job.Error
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleGenerateListings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := requireParam(w, r, "job_id")
		if !ok {
			return
		}

		listings, err := deps.Service.GenerateListings(r.Context(), jobID)
		if err != nil {
			writeServiceError(w, err, "Error generating listings")
			return
		}

		writeJSON(w, http.StatusOK, listingsResponse{
			Success:  true,
			Listings: listings,
			Message:  fmt.Sprintf("Generated %d marketplace listings", len(listings)),
		})
	}
}

func handleNegotiate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listingID, ok := requireParam(w, r, "listing_id")
		if !ok {
			return
		}
		buyerMessage, ok := requireParam(w, r, "buyer_message")
		if !ok {
			return
		}
		price, ok := floatParam(w, r, "current_price")
		if !ok {
			return
		}

		reply, err := deps.Service.Negotiate(r.Context(), extraction.NegotiationRequest{
			ListingID:    listingID,
			BuyerMessage: buyerMessage,
			CurrentPrice: price,
		})
		if err != nil {
			writeServiceError(w, err, "Error handling negotiation")
			return
		}

		writeJSON(w, http.StatusOK, negotiateResponse{
			Success:  true,
			Response: reply,
			Message:  "Negotiation response generated",
		})
	}
}

func handleAddManualItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := requireParam(w, r, "job_id")
		if !ok {
			return
		}
		name, ok := requireParam(w, r, "item_name")
		if !ok {
			return
		}
		price, ok := floatParam(w, r, "price")
		if !ok {
			return
		}
		q := r.URL.Query()

		item, err := deps.Service.AddManualItem(jobID, extraction.ManualItem{
			FrameID:   q.Get("frame_id"),
			Name:      name,
			Category:  q.Get("category"),
			Price:     price,
			Condition: q.Get("condition"),
		})
		if err != nil {
			writeServiceError(w, err, "Error adding item")
			return
		}

		writeJSON(w, http.StatusOK, manualItemResponse{
			Success: true,
			Item:    item,
			Message: "Item added successfully",
		})
	}
}

func handleCategorySuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "categories": extraction.Categories})
}

func handleCancelJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if err := deps.Service.Cancel(jobID); err != nil {
			writeServiceError(w, err, "Error cancelling job")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": jobID, "message": "Job cancellation requested"})
	}
}

func requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		httpError(w, http.StatusBadRequest, "%s is required", name)
		return "", false
	}
	return v, true
}

func floatParam(w http.ResponseWriter, r *http.Request, name string) (float64, bool) {
	v, ok := requireParam(w, r, name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		httpError(w, http.StatusBadRequest, "%s must be a number", name)
		return 0, false
	}
	return f, true
}
