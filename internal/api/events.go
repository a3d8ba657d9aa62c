package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HandleEvents handles the SSE stream consumed by the browser client. Each
// connection is one hub observer; closing the request unsubscribes it, which
// resets preferences when it was the last one.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	obs := h.hub.Subscribe(r.RemoteAddr)
	defer h.hub.Unsubscribe(obs)

	connected, err := json.Marshal(map[string]string{
		"status":      "connected",
		"observer_id": obs.ID,
	})
	if err != nil {
		h.logger.Warn("failed to marshal connected event", "error", err, "observer_id", obs.ID)
		return
	}
	if err := writeSSE(w, "connected", string(connected)); err != nil {
		h.logger.Warn("failed to write SSE connected event", "error", err, "observer_id", obs.ID)
		return
	}
	flusher.Flush()

	h.logger.Info("event stream connected", "observer_id", obs.ID, "remote", r.RemoteAddr)

	keepalive := time.NewTicker(h.cfg.SSEKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("event stream disconnected", "observer_id", obs.ID)
			return
		case evt, ok := <-obs.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				h.logger.Warn("failed to marshal event", "error", err, "observer_id", obs.ID)
				continue
			}
			if err := writeSSE(w, string(evt.Type), string(data)); err != nil {
				h.logger.Warn("failed to write SSE event", "error", err, "observer_id", obs.ID)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				h.logger.Warn("failed to write SSE keepalive ping", "error", err, "observer_id", obs.ID)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
