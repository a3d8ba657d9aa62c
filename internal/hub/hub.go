// Package hub fans out engine events to connected browser observers.
//
// Delivery is at-most-once and best-effort: a slow observer's event is
// dropped rather than blocking the broadcaster. The hub also owns one piece
// of lifecycle policy: when the observer set becomes empty, the shared voice
// preferences are force-reset so enforcement cannot wedge the host with
// nobody left to hear a response or supply input.
package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/akorchev/voicegate/internal/prefs"
)

// EventType identifies the kind of broadcast event.
type EventType string

const (
	// EventSpeak carries text the browser should synthesize aloud.
	EventSpeak EventType = "speak"
	// EventCue signals that a wait just began; the browser answers it with a
	// short audible chime.
	EventCue EventType = "cue"
	// EventWaitStatus signals that the engine started or stopped waiting
	// for new input.
	EventWaitStatus EventType = "wait_status"
)

// Event is one broadcast payload.
type Event struct {
	Type    EventType `json:"type"`
	Text    string    `json:"text,omitempty"`
	Waiting bool      `json:"waiting,omitempty"`
}

// Observer is one connected browser session. Events arrive on the channel
// until Unsubscribe closes it.
type Observer struct {
	ID     string
	Label  string
	Events chan Event
}

// Hub is the broadcast registry.
type Hub struct {
	mu        sync.Mutex
	observers map[string]*Observer
	prefs     *prefs.Preferences
	buffer    int
	dropped   int64
	logger    *slog.Logger
}

// New creates a hub. bufferSize caps how many undelivered events an observer
// may accumulate before further events are dropped for it.
func New(p *prefs.Preferences, bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		observers: make(map[string]*Observer),
		prefs:     p,
		buffer:    bufferSize,
		logger:    logger,
	}
}

// Subscribe registers a new observer and returns its handle.
func (h *Hub) Subscribe(label string) *Observer {
	obs := &Observer{
		ID:     uuid.NewString(),
		Label:  label,
		Events: make(chan Event, h.buffer),
	}

	h.mu.Lock()
	h.observers[obs.ID] = obs
	count := len(h.observers)
	h.mu.Unlock()

	h.logger.Info("observer subscribed", "observer_id", obs.ID, "label", label, "observers", count)
	return obs
}

// Unsubscribe removes an observer and closes its channel. When the last
// observer leaves, preferences are reset to their defaults.
func (h *Hub) Unsubscribe(obs *Observer) {
	if obs == nil {
		return
	}

	h.mu.Lock()
	current, ok := h.observers[obs.ID]
	if !ok || current != obs {
		h.mu.Unlock()
		return
	}
	delete(h.observers, obs.ID)
	close(obs.Events)
	empty := len(h.observers) == 0
	h.mu.Unlock()

	h.logger.Info("observer unsubscribed", "observer_id", obs.ID, "label", obs.Label)

	if empty && h.prefs != nil {
		h.prefs.Reset()
		h.logger.Info("last observer disconnected, preferences reset")
	}
}

// Broadcast delivers the event to every observer, dropping it for any whose
// buffer is full.
func (h *Hub) Broadcast(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, obs := range h.observers {
		select {
		case obs.Events <- evt:
		default:
			h.dropped++
			h.logger.Warn("observer buffer full, event dropped",
				"observer_id", obs.ID,
				"type", evt.Type,
			)
		}
	}
}

// BroadcastSpeak broadcasts text for the browser to speak aloud.
func (h *Hub) BroadcastSpeak(text string) {
	h.Broadcast(Event{Type: EventSpeak, Text: text})
}

// BroadcastCue signals the start of a wait to every observer.
func (h *Hub) BroadcastCue() {
	h.Broadcast(Event{Type: EventCue})
}

// BroadcastWaitStatus broadcasts whether the engine is waiting for input.
func (h *Hub) BroadcastWaitStatus(waiting bool) {
	h.Broadcast(Event{Type: EventWaitStatus, Waiting: waiting})
}

// ObserverCount returns the number of connected observers.
func (h *Hub) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// DroppedEvents returns how many events were dropped for slow observers.
func (h *Hub) DroppedEvents() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
