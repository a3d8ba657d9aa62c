// Package store provides the in-memory utterance and conversation store.
package store

import (
	"errors"

	"github.com/akorchev/voicegate/internal/domain"
)

// ErrEmptyText is returned when an utterance is submitted with no content
// after trimming. The store is left unchanged.
var ErrEmptyText = errors.New("utterance text cannot be empty")

// Store holds utterances and the conversation timeline.
//
// The conversation's user rows are a projection over the utterances: a user
// message always reads through to its utterance's current status, so the two
// views cannot drift.
type Store interface {
	// Append creates a pending utterance and its user conversation row in one
	// synchronous step. Returns ErrEmptyText when the trimmed text is empty.
	Append(text string) (domain.Utterance, error)

	// AppendAssistant records assistant output in the conversation timeline.
	// Assistant messages carry no delivery status. Returns ErrEmptyText when
	// the trimmed text is empty.
	AppendAssistant(text string) (domain.ConversationMessage, error)

	// RecentUtterances returns up to n utterances, newest first.
	// n <= 0 returns all of them.
	RecentUtterances(n int) []domain.Utterance

	// RecentConversation returns the last n conversation messages, oldest
	// first. The ordering is a contract: chat display depends on it.
	RecentConversation(n int) []domain.ConversationMessage

	// Transition advances the utterance to next and reports whether it moved.
	// Backward, repeated, and skipping transitions are safe no-ops, as is an
	// unknown id (an in-flight wait may race a Clear).
	Transition(id string, next domain.Status) bool

	// PendingUtterances returns all pending utterances, oldest first.
	PendingUtterances() []domain.Utterance

	// DeliverPending transitions every pending utterance to delivered, oldest
	// first, and returns the ones that moved.
	DeliverPending() []domain.Utterance

	// RespondDelivered transitions every delivered utterance to responded and
	// returns how many moved.
	RespondDelivered() int

	// HasPending reports whether any utterance is still pending.
	HasPending() bool

	// HasDelivered reports whether any utterance is delivered but unanswered.
	HasDelivered() bool

	// Clear empties both collections.
	Clear()
}
