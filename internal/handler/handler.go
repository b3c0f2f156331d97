// Package handler exposes the media service over HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nuln/fstream"
	"github.com/nuln/fstream/internal/media"
)

// errorHeader carries the failure reason on responses without a JSON body.
const errorHeader = "X-Files-Error"

// Options tunes the HTTP layer.
type Options struct {
	// ChunkSize is the read size for inbound bodies.
	ChunkSize int
	// MaxUploadSize rejects larger bodies with 413.
	MaxUploadSize int64
	// RestartEveryPhoto sets restartNow on every Nth image upload; 0
	// disables it.
	RestartEveryPhoto int
	// Pool runs blocking body reads and response writes. Nil means the
	// shared default pool.
	Pool *fstream.IOPool
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	svc     *media.Service
	logger  log.Logger
	opts    Options
	metrics *Metrics

	imageUploads atomic.Int64
}

// New registers all routes and returns the root http.Handler.
//
// Middleware stack (outer to inner): RequestID, access log, Recoverer.
func New(svc *media.Service, logger log.Logger, opts Options) http.Handler {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = fstream.DefaultChunkSize
	}
	if opts.Pool == nil {
		opts.Pool = fstream.DefaultIOPool()
	}
	h := &Handler{
		svc:     svc,
		logger:  logger,
		opts:    opts,
		metrics: NewMetrics(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLog)
	r.Use(middleware.Recoverer)

	for _, k := range media.Kinds {
		r.Route("/"+k.Name, func(r chi.Router) {
			r.Post("/{filename}", h.upload(k))
			r.Get("/{filename}", h.download(k, h.svc.Open))
			r.Head("/{filename}", h.download(k, h.svc.Open))
			r.Put("/{filename}", h.rename(k))
			r.Delete("/{filename}", h.delete(k))
		})
		r.Get("/"+k.Singular+"-thumbs/{filename}", h.download(k, h.svc.OpenThumb))
		r.Get("/"+k.Singular+"-meta/{filename}", h.download(k, h.svc.OpenMeta))
		r.Get("/"+k.Singular+"-infos", h.list(k))
		r.Get("/"+k.Singular+"-count", h.count(k))
		r.Post("/"+k.Singular+"/download-as-zip", h.archive(k))
	}

	r.Get("/usage", h.usage)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", h.metrics.Handler())
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(errorHeader, "no route for "+r.URL.Path)
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

// Status is the outcome of a rename or delete.
type Status struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// UploadStatus is the response to an upload.
type UploadStatus struct {
	Success    bool   `json:"success"`
	Size       int64  `json:"size"`
	RestartNow bool   `json:"restartNow"`
	Error      string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
