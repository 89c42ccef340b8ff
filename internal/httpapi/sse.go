package httpapi

import (
	"fmt"
	"net/http"
)

// sseWriter wraps a ResponseWriter that has already committed to
// text/event-stream, flushing after every frame so the client sees chunks
// as they arrive rather than buffered at response end. Grounded on the
// teacher's handlers.SSEWriter.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) writeFrame(frame []byte) {
	if len(frame) == 0 {
		return
	}
	_, _ = s.w.Write(frame)
	s.flusher.Flush()
}

func (s *sseWriter) writeRaw(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.w, format, args...)
	s.flusher.Flush()
}
