package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var errStreamingUnsupported = errors.New("streaming not supported")

// eventStream writes Server-Sent Events. Each event carries an increasing id so a client log
// can tell repeated views apart.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

// newEventStream commits a 200 event-stream response and tells the client how long to wait
// before reconnecting.
func newEventStream(w http.ResponseWriter, reconnect time.Duration) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", reconnect.Milliseconds()); err != nil {
		return nil, err
	}
	flusher.Flush()

	return &eventStream{w: w, flusher: flusher}, nil
}

// send writes one named event with a JSON payload
func (s *eventStream) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// fail sends a terminal error event. The stream is unusable afterwards.
func (s *eventStream) fail(message string) {
	_ = s.send("error", map[string]string{"error": message})
}
