package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Stream is a server-sent-events feed of the same payloads the websocket
// rooms carry, for subscribers that cannot hold a socket open.
// GET /api/endpoints/{slug}/stream
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if _, err := h.svc.GetEndpoint(r.Context(), slug); err != nil {
		h.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	sub := h.hub.Subscribe(slug)
	defer sub.Close()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-sub.C:
			if !ok {
				return
			}
			// The payload is the hub envelope; its "event" field names
			// the event, so data-only frames are enough.
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-ticker.C:
			// Heartbeat to keep intermediaries from closing the stream.
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
