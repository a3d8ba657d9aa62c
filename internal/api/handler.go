// Package api provides HTTP handlers for the voicegate API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/akorchev/voicegate/internal/config"
	"github.com/akorchev/voicegate/internal/domain"
	"github.com/akorchev/voicegate/internal/gate"
	"github.com/akorchev/voicegate/internal/hub"
	"github.com/akorchev/voicegate/internal/prefs"
	"github.com/akorchev/voicegate/internal/store"
	"github.com/akorchev/voicegate/internal/wait"
)

// maxRequestBodySize caps inbound JSON bodies (64KB is generous for speech).
const maxRequestBodySize = 64 << 10

// defaultListLimit bounds list responses when the client passes no limit.
const defaultListLimit = 50

// Handler serves the HTTP surface over the engine components.
type Handler struct {
	store   store.Store
	prefs   *prefs.Preferences
	hub     *hub.Hub
	gate    *gate.Gate
	waiter  gate.Waiter
	limiter *RateLimiter
	cfg     *config.Config
	logger  *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(s store.Store, p *prefs.Preferences, h *hub.Hub, g *gate.Gate, w gate.Waiter, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   s,
		prefs:   p,
		hub:     h,
		gate:    g,
		waiter:  w,
		limiter: NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		cfg:     cfg,
		logger:  logger,
	}
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.limiter.Stop()
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/utterances", h.SubmitUtterance)
		r.Get("/utterances", h.ListUtterances)
		r.Get("/conversation", h.ListConversation)
		r.Get("/preferences", h.GetPreferences)
		r.Put("/preferences", h.UpdatePreferences)
		r.Post("/clear", h.Clear)
		r.Get("/events", h.HandleEvents)
		r.Post("/hooks/validate", h.ValidateCheckpoint)
		r.Post("/speak", h.Speak)
		r.Post("/dequeue", h.Dequeue)
		r.Post("/wait", h.Wait)
		r.Get("/status", h.Status)
	})
	r.Get("/health", h.Health)
}

// SubmitUtterance handles POST /api/utterances.
func (h *Handler) SubmitUtterance(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(clientKey(r)) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	utt, err := h.store.Append(req.Text)
	if err != nil {
		if errors.Is(err, store.ErrEmptyText) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to append utterance", "error", err)
		Error(w, http.StatusInternalServerError, "failed to store utterance")
		return
	}

	h.logger.Info("utterance submitted", "utterance_id", utt.ID, "text_length", len(utt.Text))
	JSON(w, http.StatusCreated, utt)
}

// ListUtterances handles GET /api/utterances, newest first.
func (h *Handler) ListUtterances(w http.ResponseWriter, r *http.Request) {
	utts := h.store.RecentUtterances(queryLimit(r))
	if utts == nil {
		utts = []domain.Utterance{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"utterances": utts})
}

// ListConversation handles GET /api/conversation, oldest first.
func (h *Handler) ListConversation(w http.ResponseWriter, r *http.Request) {
	msgs := h.store.RecentConversation(queryLimit(r))
	if msgs == nil {
		msgs = []domain.ConversationMessage{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// GetPreferences handles GET /api/preferences.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.prefs.Snapshot())
}

// UpdatePreferences handles PUT /api/preferences. Omitted fields keep their
// current values.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VoiceInputActive      *bool `json:"voice_input_active"`
		VoiceResponsesEnabled *bool `json:"voice_responses_enabled"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	state := h.prefs.Update(req.VoiceInputActive, req.VoiceResponsesEnabled)
	h.logger.Info("preferences updated",
		"input_active", state.VoiceInputActive,
		"responses_enabled", state.VoiceResponsesEnabled,
	)
	JSON(w, http.StatusOK, state)
}

// Clear handles POST /api/clear.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.store.Clear()
	h.logger.Info("conversation cleared")
	JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// ValidateCheckpoint handles POST /api/hooks/validate, the host's checkpoint
// call.
func (h *Handler) ValidateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	action, err := gate.ParseAction(req.Action)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	JSON(w, http.StatusOK, h.gate.Validate(r.Context(), action))
}

// Speak handles POST /api/speak.
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	msg, err := h.gate.Speak(req.Text)
	if err != nil {
		switch {
		case errors.Is(err, gate.ErrVoiceResponsesDisabled):
			Error(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrEmptyText):
			Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("failed to record spoken reply", "error", err)
			Error(w, http.StatusInternalServerError, "failed to record spoken reply")
		}
		return
	}

	JSON(w, http.StatusOK, msg)
}

// Dequeue handles POST /api/dequeue, the manual-mode fetch.
func (h *Handler) Dequeue(w http.ResponseWriter, r *http.Request) {
	delivered, err := h.gate.Dequeue()
	if err != nil {
		Error(w, http.StatusConflict, err.Error())
		return
	}
	if delivered == nil {
		delivered = []domain.Utterance{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"utterances": delivered})
}

// Wait handles POST /api/wait, blocking until input arrives or the bounded
// timeout passes.
func (h *Handler) Wait(w http.ResponseWriter, r *http.Request) {
	res, err := h.waiter.Wait(r.Context())
	if err != nil {
		if errors.Is(err, wait.ErrVoiceInputInactive) {
			Error(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("wait failed", "error", err)
		Error(w, http.StatusInternalServerError, "wait failed")
		return
	}
	JSON(w, http.StatusOK, res)
}

// Status handles GET /api/status, a summary for the browser header bar.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var pending, delivered, responded int
	for _, u := range h.store.RecentUtterances(0) {
		switch u.Status {
		case domain.StatusPending:
			pending++
		case domain.StatusDelivered:
			delivered++
		case domain.StatusResponded:
			responded++
		}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"preferences":    h.prefs.Snapshot(),
		"pending":        pending,
		"delivered":      delivered,
		"responded":      responded,
		"observers":      h.hub.ObserverCount(),
		"dropped_events": h.hub.DroppedEvents(),
		"delivery_mode":  h.cfg.DeliveryMode,
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	})
}

// decode reads a bounded JSON body into v, writing the error response itself
// on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// clientKey derives the rate-limit key from the remote address.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return n
}
