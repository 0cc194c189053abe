package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/raine/tori-extract/internal/extraction"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func httpError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Success: false, Detail: fmt.Sprintf(format, args...)})
}

// writeServiceError maps service errors to status codes. prefix is used for
// unexpected failures.
func writeServiceError(w http.ResponseWriter, err error, prefix string) {
	var validationErr *extraction.ValidationError
	switch {
	case errors.Is(err, extraction.ErrJobNotFound):
		httpError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, extraction.ErrPipelineNotComplete):
		httpError(w, http.StatusBadRequest, "Extraction not completed yet")
	case errors.As(err, &validationErr):
		httpError(w, http.StatusBadRequest, "%s", capitalize(validationErr.Message))
	case errors.Is(err, extraction.ErrShuttingDown):
		httpError(w, http.StatusServiceUnavailable, "Service is shutting down")
	default:
		log.Error().Err(err).Msg(prefix)
		httpError(w, http.StatusInternalServerError, "%s: %v", prefix, err)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
