package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/go-chi/chi/v5"

	"github.com/nuln/fstream"
	"github.com/nuln/fstream/internal/chunkio"
	"github.com/nuln/fstream/internal/media"
)

type openFunc func(ctx context.Context, kind media.Kind, name string) (*media.Download, error)

func (h *Handler) upload(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		if ct := r.Header.Get("Content-Type"); !kind.Accepts(ct) {
			writeJSON(w, http.StatusUnsupportedMediaType, UploadStatus{Error: "unsupported content type " + strconv.Quote(ct)})
			return
		}
		if h.opts.MaxUploadSize > 0 {
			if r.ContentLength > h.opts.MaxUploadSize {
				writeJSON(w, http.StatusRequestEntityTooLarge, UploadStatus{Error: "upload exceeds " + units.BytesSize(float64(h.opts.MaxUploadSize))})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadSize)
		}

		body := chunkio.Body(r.Body, r.ContentLength, h.opts.ChunkSize, h.opts.Pool)
		info, err := h.svc.Store(r.Context(), kind, name, body, r.ContentLength)
		if err != nil {
			h.metrics.observeTransfer("in", 0, err)
			var tooLarge *http.MaxBytesError
			switch {
			case errors.Is(err, media.ErrInvalidName):
				writeJSON(w, http.StatusBadRequest, UploadStatus{Error: err.Error()})
			case errors.As(err, &tooLarge):
				writeJSON(w, http.StatusRequestEntityTooLarge, UploadStatus{Error: err.Error()})
			case fstream.IsCancelled(err):
				h.logger.Warnf("Upload of %s/%s abandoned by client: %s", kind, name, err)
			default:
				h.logger.Errorf("Upload of %s/%s failed: %s", kind, name, err)
				writeJSON(w, http.StatusServiceUnavailable, UploadStatus{Error: err.Error()})
			}
			return
		}
		h.metrics.observeTransfer("in", info.SizeInBytes, nil)

		status := UploadStatus{Success: true, Size: info.SizeInBytes}
		if kind.Name == media.Images.Name && h.opts.RestartEveryPhoto > 0 {
			if h.imageUploads.Add(1)%int64(h.opts.RestartEveryPhoto) == 0 {
				h.logger.Infof("Asking client to restart after %d images.", h.imageUploads.Load())
				status.RestartNow = true
			}
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func (h *Handler) download(kind media.Kind, open openFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := open(r.Context(), kind, chi.URLParam(r, "filename"))
		if err != nil {
			h.writeOpenError(w, err)
			return
		}
		defer d.Close()

		size := d.File.Size()
		rng, partial, err := parseRange(r.Header.Get("Range"), size)
		if err != nil {
			w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
			w.Header().Set(errorHeader, err.Error())
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}

		hdr := w.Header()
		hdr.Set("Content-Type", d.Info.MediaType)
		hdr.Set("Content-Length", strconv.FormatInt(rng.Length, 10))
		hdr.Set("Accept-Ranges", "bytes")
		if !d.Info.LastModified.IsZero() {
			hdr.Set("Last-Modified", d.Info.LastModified.UTC().Format(http.TimeFormat))
		}
		if partial {
			hdr.Set("Content-Range", contentRange(rng, size))
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		if r.Method == http.MethodHead {
			return
		}

		n, err := h.send(r.Context(), w, h.svc.Stream(d, rng))
		h.metrics.observeTransfer("out", n, err)
		if err != nil && !fstream.IsCancelled(err) {
			h.logger.Errorf("Download of %s/%s failed after %d bytes: %s", kind, d.Info.FileName, n, err)
		}
	}
}

// send drains seq into w through the I/O pool and returns once no write is
// in flight.
func (h *Handler) send(ctx context.Context, w io.Writer, seq fstream.Sequence) (int64, error) {
	rw := &responseWriter{w: w}
	t := fstream.DrainInto(seq, fstream.NewAsyncWriter(rw, h.opts.Pool))
	err := t.Wait(ctx)
	rw.finish()
	return t.Written(), err
}

func (h *Handler) writeOpenError(w http.ResponseWriter, err error) {
	w.Header().Set(errorHeader, err.Error())
	switch {
	case fstream.IsNotFound(err):
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (h *Handler) rename(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		raw, err := io.ReadAll(io.LimitReader(r.Body, 1024))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Status{Error: err.Error()})
			return
		}
		newName := strings.TrimSpace(string(raw))
		h.logger.Debugf("rename %s/%s to %s", kind, name, newName)
		if err := h.svc.Rename(r.Context(), kind, name, newName); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, Status{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, Status{Success: true})
	}
}

func (h *Handler) delete(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		h.logger.Debugf("delete %s/%s", kind, name)
		if err := h.svc.Delete(r.Context(), kind, name); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, Status{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, Status{Success: true})
	}
}
