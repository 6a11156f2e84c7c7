package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookbin/hookbin/internal/apperr"
)

// ReplayRequest re-sends a stored capture to its own capture URL, so a
// consumer wired to the endpoint sees the event again.
// POST /api/endpoints/requests/{requestID}/replay
func (h *Handler) ReplayRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestID")

	stored, err := h.svc.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	slug, err := h.svc.EndpointSlug(r.Context(), stored.EndpointID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	target := scheme + "://" + r.Host + "/api/hooks/" + slug

	newReq, err := http.NewRequestWithContext(r.Context(), stored.Method, target, bytes.NewReader(replayBody(stored.Body)))
	if err != nil {
		apperr.Internal("failed to build replay request").WriteJSON(w)
		return
	}

	var headers map[string][]string
	if err := json.Unmarshal(stored.Headers, &headers); err == nil {
		for name, values := range headers {
			// These must be unique to the new request.
			if name == "Host" || name == "Content-Length" || name == "Connection" {
				continue
			}
			for _, v := range values {
				newReq.Header.Add(name, v)
			}
		}
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(newReq)
	if err != nil {
		apperr.Internal("failed to replay request: " + err.Error()).WriteJSON(w)
		return
	}
	defer resp.Body.Close()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  resp.Status,
	})
}

// replayBody turns the normalized stored body back into wire bytes: JSON
// strings are unquoted, JSON null becomes empty, anything else is sent
// verbatim.
func replayBody(body json.RawMessage) []byte {
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return []byte(s)
	}
	return body
}
