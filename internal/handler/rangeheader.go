package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nuln/fstream"
)

var errUnsatisfiable = errors.New("range not satisfiable")

// parseRange interprets a Range header against a file of size bytes. Only a
// single byte range is honoured; anything else, including a malformed
// header, selects the whole file. partial reports whether a 206 response is
// due.
func parseRange(header string, size int64) (rng fstream.ReadRange, partial bool, err error) {
	whole := fstream.WholeFile(size)
	ranges, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(ranges, ",") {
		return whole, false, nil
	}
	first, last, ok := strings.Cut(strings.TrimSpace(ranges), "-")
	if !ok {
		return whole, false, nil
	}

	if first == "" {
		// Suffix range: the final n bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return whole, false, nil
		}
		if n == 0 || size == 0 {
			return fstream.ReadRange{}, false, errUnsatisfiable
		}
		n = min(n, size)
		return fstream.ReadRange{Offset: size - n, Length: n}, true, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return whole, false, nil
	}
	if start >= size {
		return fstream.ReadRange{}, false, errUnsatisfiable
	}
	end := size - 1
	if last != "" {
		e, err := strconv.ParseInt(last, 10, 64)
		if err != nil || e < start {
			return whole, false, nil
		}
		end = min(e, size-1)
	}
	return fstream.ReadRange{Offset: start, Length: end - start + 1}, true, nil
}

func contentRange(rng fstream.ReadRange, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", rng.Offset, rng.Offset+rng.Length-1, size)
}
