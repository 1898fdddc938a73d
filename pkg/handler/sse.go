package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepAliveInterval is how often an idle event stream sends a comment line.
const keepAliveInterval = 25 * time.Second

type eventStream[T any] struct {
	event  string
	events <-chan T
}

// EventStream renders values received from events as Server-Sent Events
// named event, each JSON encoded on one data line. It returns when the
// client disconnects or events is closed.
func EventStream[T any](event string, events <-chan T) Response {
	return eventStream[T]{event: event, events: events}
}

func (s eventStream[T]) Render(w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return NewHTTPError(http.StatusInternalServerError, "streaming_unsupported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		case v, ok := <-s.events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", s.event, data); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
