package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"github.com/nidhogg/cognitive-core/internal/service"
	"github.com/nidhogg/cognitive-core/internal/store"
	"go.uber.org/zap"
)

const defaultSnapshotLimit = 20

// SnapshotLister reads the snapshot archive.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]store.Snapshot, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc       *service.Service
	snapshots SnapshotLister
	logger    *zap.Logger
}

// NewHandler creates a new API handler. snapshots may be nil when no
// archive is configured.
func NewHandler(svc *service.Service, snapshots SnapshotLister, logger *zap.Logger) *Handler {
	return &Handler{
		svc:       svc,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/core", h.getCore)
		r.Put("/core", h.updateCore)
		r.Post("/conversations", h.recordConversation)
		r.Post("/awareness/activate", h.activateAwareness)
		r.Post("/memory/query", h.queryMemory)

		// Streaming
		r.Get("/updates/stream", h.streamUpdates)
		r.Get("/subscribers", h.listSubscribers)

		r.Get("/snapshots", h.listSnapshots)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "cognitive-core"})
}

func (h *Handler) getCore(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCognitiveCore(r.Context(), &service.GetRequest{ClientID: r.URL.Query().Get("client_id")})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) updateCore(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.svc.UpdateCognitiveCore(r.Context(), &req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) recordConversation(w http.ResponseWriter, r *http.Request) {
	var req service.RecordConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.svc.RecordConversation(r.Context(), &req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) activateAwareness(w http.ResponseWriter, r *http.Request) {
	var req service.ActivateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.svc.ActivateAwareness(r.Context(), &req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) queryMemory(w http.ResponseWriter, r *http.Request) {
	var req service.QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.svc.QueryMemory(r.Context(), &req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamUpdates serves StreamUpdates as Server-Sent Events.
func (h *Handler) streamUpdates(w http.ResponseWriter, r *http.Request) {
	req := &service.StreamRequest{ClientID: r.URL.Query().Get("client_id")}
	if req.ClientID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": service.ErrMissingClientID.Error()})
		return
	}
	if types := r.URL.Query().Get("update_types"); types != "" {
		req.UpdateTypes = strings.Split(types, ",")
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := h.svc.StreamUpdates(r.Context(), req, func(u *notify.Update) error {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.UpdateType, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("sse stream ended", zap.String("client", req.ClientID), zap.Error(err))
	}
}

func (h *Handler) listSubscribers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Subscribers())
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot archive not configured"})
		return
	}
	limit := defaultSnapshotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	snaps, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("list snapshots", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if snaps == nil {
		snaps = []store.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
