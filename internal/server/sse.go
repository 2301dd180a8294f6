package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

const sseWriteTimeout = 3 * time.Second

// SSEStream manages a Server-Sent Events connection.
type SSEStream struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewSSEStream sets the event-stream headers and flushes them.
// It fails when w cannot stream.
func NewSSEStream(w http.ResponseWriter) (*SSEStream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	f.Flush()
	return &SSEStream{w: w, f: f}, nil
}

// write sends one raw frame under a bounded write deadline so a
// stalled client cannot block the handler.
func (s *SSEStream) write(frame string) bool {
	rc := http.NewResponseController(s.w)
	_ = rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout))
	defer func() { _ = rc.SetWriteDeadline(time.Time{}) }()

	if _, err := fmt.Fprint(s.w, frame); err != nil {
		log.Printf("SSE write error: %v", err)
		return false
	}
	s.f.Flush()
	return true
}

// Send writes an event with string data. It returns false when
// the write fails.
func (s *SSEStream) Send(event, data string) bool {
	return s.write(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
}

// SendJSON writes an event with JSON data.
func (s *SSEStream) SendJSON(event string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("SSE marshal error for %q: %v", event, err)
		return false
	}
	return s.Send(event, string(data))
}

// SendWithID writes a JSON event carrying an id, which clients
// echo back as Last-Event-ID on reconnect.
func (s *SSEStream) SendWithID(event string, id uint64, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("SSE marshal error for %q: %v", event, err)
		return false
	}
	return s.write(fmt.Sprintf(
		"id: %d\nevent: %s\ndata: %s\n\n", id, event, data,
	))
}

// Heartbeat writes a comment line that keeps proxies from
// closing an idle stream.
func (s *SSEStream) Heartbeat() bool {
	return s.write(": keepalive " + time.Now().UTC().Format(time.RFC3339) + "\n\n")
}
