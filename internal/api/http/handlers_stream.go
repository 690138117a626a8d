package apihttp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"peerstream/internal/domain"
	"peerstream/internal/domain/ports"
	"peerstream/internal/metrics"
	"peerstream/internal/session"
)

// streamReadahead is how far the reader pre-buffers past the current
// position; large enough to ride out short peer stalls at typical
// video bitrates.
const streamReadahead int64 = 8 << 20

// handleStream serves file bytes over HTTP with single-range support.
// The download variant forces a save dialog via Content-Disposition and
// is otherwise identical.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id string, asAttachment bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	sess, err := s.registry.Get(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	s.registry.Touch(id)

	fileIndex, err := parseFileIndex(r.URL.Query().Get("file"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid file parameter")
		return
	}

	var (
		reader ports.StreamReader
		file   domain.FileRef
	)
	if fileIndex < 0 {
		reader, file, err = sess.NewReader()
	} else {
		reader, file, err = sess.NewFileReader(fileIndex)
	}
	if err != nil {
		writeSessionError(w, err)
		return
	}
	defer reader.Close()

	reader.SetContext(r.Context())
	reader.SetReadahead(streamReadahead)
	metrics.StreamsOpenedTotal.Inc()

	ext := path.Ext(file.Path)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = fallbackContentType(ext)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	// Close the connection after streaming so keep-alive cannot hold the
	// reader open after the player stops playback.
	w.Header().Set("Connection", "close")
	if asAttachment {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(path.Base(file.Path))))
	}

	size := file.Length

	if r.Method == http.MethodHead {
		if size >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	// Bytes flowing to the client refresh the session's access time, so
	// long playback without new requests never looks idle.
	out := &touchingWriter{w: w, registry: s.registry, key: id}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" {
		start, end, err := parseByteRange(rangeHeader, size)
		if errors.Is(err, errInvalidRange) {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid range")
			return
		}
		if errors.Is(err, errRangeNotSatisfiable) {
			if size >= 0 {
				w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			}
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		if _, err := reader.Seek(start, io.SeekStart); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to seek stream")
			return
		}
		length := end - start + 1
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
		if n, err := io.CopyN(out, reader, length); err != nil {
			// Client disconnects mid-range are routine for video players.
			s.logger.Debug("stream range copy interrupted",
				slog.String("sessionId", id),
				slog.Int64("bytesSent", n),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if n, err := io.Copy(out, reader); err != nil {
		s.logger.Debug("stream copy interrupted",
			slog.String("sessionId", id),
			slog.Int64("bytesSent", n),
			slog.String("error", err.Error()),
		)
	}
}

// touchingWriter counts streamed bytes and refreshes the session's access
// time on every chunk written to the client.
type touchingWriter struct {
	w        io.Writer
	registry *session.Registry
	key      string
}

func (t *touchingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		t.registry.Touch(t.key)
		metrics.StreamBytesSentTotal.Add(float64(n))
	}
	return n, err
}
