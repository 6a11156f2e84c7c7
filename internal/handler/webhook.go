package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hookbin/hookbin/internal/apperr"
	"github.com/hookbin/hookbin/internal/service"
)

// maxBodyBytes caps captured bodies at 10 MB, matching the limit the
// public capture surface advertises.
const maxBodyBytes = 10 << 20

// Capture is the public webhook receiver: any method, any content type.
// ANY /api/hooks/{slug}
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		apperr.BadRequest("missing endpoint slug").WriteJSON(w)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		apperr.BadRequest("failed to read request body").WriteJSON(w)
		return
	}
	defer r.Body.Close()

	stored, err := h.svc.Capture(r.Context(), service.CaptureInput{
		Slug:         slug,
		Method:       r.Method,
		Headers:      r.Header,
		Query:        r.URL.Query(),
		Body:         body,
		ContentType:  r.Header.Get("Content-Type"),
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		RemoteAddr:   r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info("webhook captured",
		"slug", slug,
		"method", r.Method,
		"request_id", stored.ID,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Webhook received successfully",
		"requestId": stored.ID,
	})
}
