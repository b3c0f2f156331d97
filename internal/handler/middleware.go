package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// requestLog emits one access log line per request after it completes.
func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.observeRequest(r.Method, status, elapsed)
		h.logger.Infof("http method=%s path=%s status=%d bytes=%d duration_ms=%d remote=%s req=%s",
			r.Method, r.URL.Path, status, ww.BytesWritten(), elapsed.Milliseconds(), r.RemoteAddr,
			middleware.GetReqID(r.Context()))
	})
}
