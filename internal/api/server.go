package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/raine/tori-extract/internal/extraction"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Service is the extraction functionality exposed over HTTP.
type Service interface {
	Submit(sub extraction.Submission) (extraction.Job, error)
	Status(jobID string) (extraction.Job, error)
	Cancel(jobID string) error
	GenerateListings(ctx context.Context, jobID string) ([]extraction.Listing, error)
	Negotiate(ctx context.Context, req extraction.NegotiationRequest) (string, error)
	AddManualItem(jobID string, m extraction.ManualItem) (extraction.Item, error)
	JobCount() int
}

type Deps struct {
	Service        Service
	MaxUploadBytes int64
	CORSOrigins    []string
}

// NewHandler builds the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", handleHealth(deps))

	r.Route("/api/sell", func(r chi.Router) {
		r.Post("/upload-video", handleUploadVideo(deps))
		r.Get("/extraction-status/{jobID}", handleExtractionStatus(deps))
		r.Post("/generate-listings", handleGenerateListings(deps))
		r.Post("/negotiate", handleNegotiate(deps))
		r.Post("/add-manual-item", handleAddManualItem(deps))
		r.Get("/category-suggestions", handleCategorySuggestions)
		r.Delete("/jobs/{jobID}", handleCancelJob(deps))
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		event := log.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
