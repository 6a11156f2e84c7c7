package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hookbin/hookbin/internal/apperr"
	"github.com/hookbin/hookbin/internal/service"
)

type createEndpointRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Persistent  bool   `json:"persistent"`
}

// CreateEndpoint mints a new capture endpoint.
// POST /api/endpoints
func (h *Handler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var body createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		apperr.InvalidJSON("Invalid JSON in request body").WriteJSON(w)
		return
	}

	result, err := h.svc.CreateEndpoint(r.Context(), service.CreateEndpointInput{
		Name:        body.Name,
		Description: body.Description,
		Duration:    body.Duration,
		Persistent:  body.Persistent,
		CreatorIP:   service.ClientIP(r.Header.Get("X-Forwarded-For"), r.RemoteAddr),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetEndpoint returns the endpoint view for a slug.
// GET /api/endpoints/{slug}
func (h *Handler) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetEndpoint(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ListRequests returns one page of captures, newest first.
// GET /api/endpoints/{slug}/requests?limit=&page=
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	result, err := h.svc.ListRequests(r.Context(), chi.URLParam(r, "slug"), limit, page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeleteEndpoint removes an endpoint and all its captures.
// DELETE /api/endpoints/{slug}
func (h *Handler) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEndpoint(r.Context(), chi.URLParam(r, "slug")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteRequest removes a single capture; unknown ids are a no-op.
// DELETE /api/endpoints/requests/{requestID}
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRequest(r.Context(), chi.URLParam(r, "requestID")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
