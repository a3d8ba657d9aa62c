package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akorchev/voicegate/internal/domain"
	"github.com/akorchev/voicegate/internal/idgen"
)

// timelineEntry is one row in the conversation. User rows hold only the
// utterance id; their text and status are read from the utterance at query
// time. Assistant rows are self-contained.
type timelineEntry struct {
	utteranceID string
	message     domain.ConversationMessage
}

// Memory is the in-process Store implementation. A single mutex serializes
// all access so forward-only transitions hold under concurrent requests.
type Memory struct {
	mu         sync.Mutex
	utterances []*domain.Utterance
	byID       map[string]*domain.Utterance
	timeline   []timelineEntry
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		byID: make(map[string]*domain.Utterance),
	}
}

var _ Store = (*Memory)(nil)

// Append creates a pending utterance and its mirrored conversation row.
func (m *Memory) Append(text string) (domain.Utterance, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.Utterance{}, ErrEmptyText
	}

	id, err := idgen.Utterance()
	if err != nil {
		return domain.Utterance{}, fmt.Errorf("append utterance: %w", err)
	}

	u := &domain.Utterance{
		ID:        id,
		Text:      trimmed,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.utterances = append(m.utterances, u)
	m.byID[u.ID] = u
	m.timeline = append(m.timeline, timelineEntry{utteranceID: u.ID})
	return *u, nil
}

// AppendAssistant records assistant output in the timeline.
func (m *Memory) AppendAssistant(text string) (domain.ConversationMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.ConversationMessage{}, ErrEmptyText
	}

	id, err := idgen.Message()
	if err != nil {
		return domain.ConversationMessage{}, fmt.Errorf("append assistant message: %w", err)
	}

	msg := domain.ConversationMessage{
		ID:        id,
		Role:      domain.RoleAssistant,
		Text:      trimmed,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeline = append(m.timeline, timelineEntry{message: msg})
	return msg, nil
}

// RecentUtterances returns up to n utterances, newest first.
func (m *Memory) RecentUtterances(n int) []domain.Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := len(m.utterances)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]domain.Utterance, 0, n)
	for i := total - 1; i >= total-n; i-- {
		out = append(out, *m.utterances[i])
	}
	return out
}

// RecentConversation returns the last n messages, oldest first. User rows are
// rendered from their utterance so the status is always current.
func (m *Memory) RecentConversation(n int) []domain.ConversationMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := len(m.timeline)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]domain.ConversationMessage, 0, n)
	for _, entry := range m.timeline[total-n:] {
		out = append(out, m.renderLocked(entry))
	}
	return out
}

// renderLocked materializes a timeline entry. Caller holds m.mu.
func (m *Memory) renderLocked(entry timelineEntry) domain.ConversationMessage {
	if entry.utteranceID == "" {
		return entry.message
	}
	u := m.byID[entry.utteranceID]
	return domain.ConversationMessage{
		ID:        u.ID,
		Role:      domain.RoleUser,
		Text:      u.Text,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

// Transition advances one utterance. No-op on unknown id or non-forward step.
func (m *Memory) Transition(id string, next domain.Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok || !u.Status.Advances(next) {
		return false
	}
	u.Status = next
	return true
}

// PendingUtterances returns all pending utterances, oldest first.
func (m *Memory) PendingUtterances() []domain.Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Utterance
	for _, u := range m.utterances {
		if u.Status == domain.StatusPending {
			out = append(out, *u)
		}
	}
	return out
}

// DeliverPending marks every pending utterance delivered, oldest first.
func (m *Memory) DeliverPending() []domain.Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Utterance
	for _, u := range m.utterances {
		if u.Status == domain.StatusPending {
			u.Status = domain.StatusDelivered
			out = append(out, *u)
		}
	}
	return out
}

// RespondDelivered marks every delivered utterance responded.
func (m *Memory) RespondDelivered() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	moved := 0
	for _, u := range m.utterances {
		if u.Status == domain.StatusDelivered {
			u.Status = domain.StatusResponded
			moved++
		}
	}
	return moved
}

// HasPending reports whether any utterance is pending.
func (m *Memory) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.utterances {
		if u.Status == domain.StatusPending {
			return true
		}
	}
	return false
}

// HasDelivered reports whether any utterance awaits a spoken reply.
func (m *Memory) HasDelivered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.utterances {
		if u.Status == domain.StatusDelivered {
			return true
		}
	}
	return false
}

// Clear empties both collections. In-flight wait loops observe an empty
// pending set on their next poll; their queued Transition calls become no-ops.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utterances = nil
	m.byID = make(map[string]*domain.Utterance)
	m.timeline = nil
}
