package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hookbin/hookbin/internal/apperr"
	"github.com/hookbin/hookbin/internal/hub"
	"github.com/hookbin/hookbin/internal/logger"
	"github.com/hookbin/hookbin/internal/service"
)

type Handler struct {
	svc *service.Service
	hub *hub.Hub
	log *logger.Logger
}

func NewHandler(svc *service.Service, h *hub.Hub, log *logger.Logger) *Handler {
	return &Handler{
		svc: svc,
		hub: h,
		log: log,
	}
}

// Router assembles the full HTTP surface.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Request logging - skip for capture routes, they are high volume
	// and get their own structured log line on admission.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.HasPrefix(req.URL.Path, "/api/hooks/") {
				next.ServeHTTP(w, req)
				return
			}
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			h.log.Info("http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start).String(),
			)
		})
	})

	r.Get("/health", h.Health)
	r.Get("/ws", h.hub.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Route("/endpoints", func(r chi.Router) {
			r.Post("/", h.CreateEndpoint)
			r.Delete("/requests/{requestID}", h.DeleteRequest)
			r.Post("/requests/{requestID}/replay", h.ReplayRequest)
			r.Get("/{slug}", h.GetEndpoint)
			r.Get("/{slug}/requests", h.ListRequests)
			r.Get("/{slug}/stream", h.Stream)
			r.Delete("/{slug}", h.DeleteEndpoint)
		})
		r.HandleFunc("/hooks/{slug}", h.Capture)
		r.HandleFunc("/hooks/{slug}/*", h.Capture)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service failures onto the stable error taxonomy.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		appErr.WriteJSON(w)
		return
	}

	switch {
	case errors.Is(err, service.ErrEndpointNotFound):
		apperr.NotFound("Endpoint not found").WriteJSON(w)
	case errors.Is(err, service.ErrEndpointExpired):
		apperr.Gone("Endpoint has expired").WriteJSON(w)
	case errors.Is(err, service.ErrRequestNotFound):
		apperr.NotFound("Request not found").WriteJSON(w)
	case errors.Is(err, service.ErrEndpointQuota), errors.Is(err, service.ErrRequestQuota):
		apperr.RateLimited(err.Error()).WriteJSON(w)
	case errors.Is(err, service.ErrInvalidJSON):
		apperr.InvalidJSON(err.Error()).WriteJSON(w)
	default:
		h.log.Error("internal error", "error", err.Error())
		apperr.Internal("").WriteJSON(w)
	}
}
