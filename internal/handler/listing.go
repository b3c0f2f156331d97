package handler

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/nuln/fstream"
	"github.com/nuln/fstream/internal/media"
)

const (
	defaultLimit = 50
	// maxArchiveNames bounds the names accepted by download-as-zip.
	maxArchiveNames = 10000
)

func parseQuery(r *http.Request, withOrder bool) (media.Query, error) {
	v := r.URL.Query()
	q := media.Query{
		PrefixFilter: v.Get("prefixFilter"),
		Pattern:      v.Get("pattern"),
		Limit:        defaultLimit,
	}
	var err error
	if s := v.Get("offset"); s != "" {
		if q.Offset, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("offset: %w", err)
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("limit: %w", err)
		}
	}
	if withOrder {
		q.Order.Attribute = v.Get("orderAttribute")
		if s := v.Get("orderDesc"); s != "" {
			if q.Order.Desc, err = strconv.ParseBool(s); err != nil {
				return q, fmt.Errorf("orderDesc: %w", err)
			}
		}
	}
	return q, nil
}

func (h *Handler) list(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseQuery(r, true)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		files, err := h.svc.List(r.Context(), kind, q)
		if err != nil {
			h.writeQueryError(w, err)
			return
		}
		if files == nil {
			files = []*media.FileInfo{}
		}
		writeJSON(w, http.StatusOK, files)
	}
}

func (h *Handler) count(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseQuery(r, false)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		n, err := h.svc.Count(r.Context(), kind, q)
		if err != nil {
			h.writeQueryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func (h *Handler) writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, media.ErrInvalidQuery) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Errorf("Listing failed: %s", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// readNames reads newline separated file names, skipping blank lines.
func readNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		if len(names) == maxArchiveNames {
			return nil, fmt.Errorf("more than %d names", maxArchiveNames)
		}
		names = append(names, name)
	}
	return names, sc.Err()
}

// archive streams the named files back to back, or as a zip archive with
// ?format=zip. Every name is checked before the first byte is sent.
func (h *Handler) archive(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := readNames(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, name := range names {
			if _, err := h.svc.Stat(r.Context(), kind, name); err != nil {
				if errors.Is(err, media.ErrInvalidName) {
					w.Header().Set(errorHeader, err.Error())
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				h.writeOpenError(w, err)
				return
			}
		}

		if r.URL.Query().Get("format") == "zip" {
			w.Header().Set("Content-Type", "application/zip")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", kind.Name+".zip"))
			rw := &responseWriter{w: w}
			err := h.svc.ZipDownload(r.Context(), kind, names, rw)
			rw.finish()
			if err != nil && !fstream.IsCancelled(err) {
				h.logger.Errorf("Zip download of %d %s failed: %s", len(names), kind, err)
			}
			return
		}

		seq, err := h.svc.ConcatDownload(r.Context(), kind, names)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		n, err := h.send(r.Context(), w, seq)
		h.metrics.observeTransfer("out", n, err)
		if err != nil && !fstream.IsCancelled(err) {
			h.logger.Errorf("Concatenated download of %d %s failed after %d bytes: %s", len(names), kind, n, err)
		}
	}
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.svc.Usage(r.Context())
	if err != nil {
		h.logger.Errorf("Usage failed: %s", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
