// Package domain contains core domain types for the voicegate engine.
package domain

import (
	"time"
)

// Status tracks an utterance through its delivery lifecycle.
type Status string

const (
	// StatusPending means the utterance has not yet been seen by the assistant.
	StatusPending Status = "pending"
	// StatusDelivered means the assistant has received the utterance but not answered it.
	StatusDelivered Status = "delivered"
	// StatusResponded means the assistant has spoken a reply covering the utterance.
	StatusResponded Status = "responded"
)

// statusRank orders the lifecycle. Unknown statuses rank below pending so a
// malformed transition request can never advance an utterance.
func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 1
	case StatusDelivered:
		return 2
	case StatusResponded:
		return 3
	default:
		return 0
	}
}

// Advances reports whether moving from s to next is the single forward step
// the lifecycle allows. Re-applying the current status, requesting an earlier
// one, or trying to skip a step is not an advance; callers treat all of those
// as a no-op rather than an error.
func (s Status) Advances(next Status) bool {
	return statusRank(next) == statusRank(s)+1
}

// Utterance is one unit of user-supplied input with a delivery status.
type Utterance struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
