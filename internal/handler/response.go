package handler

import (
	"errors"
	"io"
	"sync"
)

var errResponseDone = errors.New("handler: response already finished")

// responseWriter guards an http.ResponseWriter that the I/O pool writes to.
// finish blocks until any write in flight has returned and rejects later
// ones, so nothing touches the ResponseWriter once the handler returns.
type responseWriter struct {
	mu   sync.Mutex
	w    io.Writer
	done bool
}

func (r *responseWriter) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return 0, errResponseDone
	}
	return r.w.Write(p)
}

func (r *responseWriter) finish() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
}
