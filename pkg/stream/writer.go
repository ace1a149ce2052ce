// Package stream implements the server-sent events framing used by the
// agent endpoint and its clients.
//
// A frame is an optional "event: <name>" line, one or more "data: <json>"
// lines and a blank line. Lines starting with ':' are comments and carry
// heartbeats.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Writer sends named events to an HTTP response. Headers are written with
// the first frame, so a handler can still reply with a plain error until
// then. Writer is safe for concurrent use.
type Writer struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	lastWrite time.Time
	err       error
	mu        sync.Mutex
	started   bool
}

// NewWriter wraps w. It fails when w does not support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// SetHeaders sets the SSE response headers.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Started reports whether any frame has been written.
func (s *Writer) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Send writes one event with data encoded as JSON. After a write error
// every later call returns that error.
func (s *Writer) Send(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}

	var frame strings.Builder
	if event != "" {
		frame.WriteString("event: ")
		frame.WriteString(event)
		frame.WriteByte('\n')
	}
	frame.WriteString("data: ")
	frame.Write(payload)
	frame.WriteString("\n\n")
	return s.write(frame.String())
}

// Comment writes a comment line, which clients ignore.
func (s *Writer) Comment(text string) error {
	return s.write(": " + strings.ReplaceAll(text, "\n", " ") + "\n\n")
}

func (s *Writer) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if !s.started {
		SetHeaders(s.w.Header())
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := s.w.Write([]byte(frame)); err != nil {
		s.err = fmt.Errorf("write event stream: %w", err)
		return s.err
	}
	s.flusher.Flush()
	s.lastWrite = time.Now()
	return nil
}

func (s *Writer) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0
	}
	return time.Since(s.lastWrite)
}

// Heartbeat writes a ping comment whenever the stream has been idle for
// interval. It returns when done is closed or a write fails.
func (s *Writer) Heartbeat(done <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if s.idleFor() < interval {
				continue
			}
			if err := s.Comment("ping"); err != nil {
				return
			}
		}
	}
}
