package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tydee/tydee-pro/internal/types"
)

const (
	// jobEvent names the snapshot events on a job stream.
	jobEvent = "job"
	// reconnectDelay is the retry hint sent to EventSource clients.
	reconnectDelay = 3 * time.Second
	// keepAliveInterval stays under common proxy idle timeouts.
	keepAliveInterval = 25 * time.Second
)

// jobStream writes job snapshots as Server-Sent Events. Each event's id is the
// snapshot version so a reconnecting client can tell which state it last saw.
type jobStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// openJobStream commits the response headers. It fails when w cannot flush.
func openJobStream(w http.ResponseWriter) (*jobStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &jobStream{w: w, flusher: flusher}
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", reconnectDelay.Milliseconds()); err != nil {
		return nil, err
	}
	flusher.Flush()
	return s, nil
}

// Snapshot sends one job state.
func (s *jobStream) Snapshot(job types.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job snapshot: %w", err)
	}
	id := strconv.FormatInt(job.Version, 10)
	if _, err := fmt.Fprintf(s.w, "id: %s\nevent: %s\ndata: %s\n\n", id, jobEvent, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Ping writes a comment line so idle connections are not reaped.
func (s *jobStream) Ping() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
