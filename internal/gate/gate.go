// Package gate implements the checkpoint decision engine consulted by the
// host runtime before it lets the assistant use a tool, speak, wait or stop.
//
// The rule chain is the protocol contract. Unresponded voice input outranks
// everything else, and a tool invocation obligates a spoken reply before the
// assistant may pause or stop. Stopping is the last point at which freshly
// arrived input can still interrupt.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/akorchev/voicegate/internal/domain"
	"github.com/akorchev/voicegate/internal/hub"
	"github.com/akorchev/voicegate/internal/prefs"
	"github.com/akorchev/voicegate/internal/store"
	"github.com/akorchev/voicegate/internal/wait"
)

// Action is a host checkpoint.
type Action string

const (
	// ActionToolUse is checked before the assistant invokes a tool.
	ActionToolUse Action = "tool-use"
	// ActionPostTool is checked after a tool returns; it behaves exactly
	// like ActionToolUse.
	ActionPostTool Action = "post-tool"
	// ActionSpeak is checked before the assistant speaks a reply.
	ActionSpeak Action = "speak"
	// ActionWait is checked before the assistant pauses for input.
	ActionWait Action = "wait"
	// ActionStop is checked before the assistant finishes its turn.
	ActionStop Action = "stop"
)

// ParseAction validates a wire-level action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.TrimSpace(s)); a {
	case ActionToolUse, ActionPostTool, ActionSpeak, ActionWait, ActionStop:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Followup names the call the host must make before retrying a blocked action.
type Followup string

const (
	// FollowupDequeue tells the host to fetch pending utterances.
	FollowupDequeue Followup = "dequeue"
	// FollowupSpeak tells the host a spoken reply is owed.
	FollowupSpeak Followup = "speak"
	// FollowupWait tells the host to wait for input before stopping.
	FollowupWait Followup = "wait"
)

// Decision is the gate's verdict. When blocked, Reason is always populated
// and self-sufficient: the host can relay it to the assistant verbatim
// without a second call.
type Decision struct {
	Approved         bool     `json:"approved"`
	Reason           string   `json:"reason,omitempty"`
	RequiredFollowup Followup `json:"required_followup,omitempty"`
}

func approve(reason string) Decision {
	return Decision{Approved: true, Reason: reason}
}

func block(followup Followup, reason string) Decision {
	return Decision{Approved: false, Reason: reason, RequiredFollowup: followup}
}

// Mode selects how rule 1 and the stop checkpoint hand over pending input.
type Mode string

const (
	// ModeAutoDeliver embeds dequeued text directly in the block reason,
	// collapsing deliver and notify into one round trip.
	ModeAutoDeliver Mode = "auto"
	// ModeManual blocks with a dequeue followup and leaves the content for
	// an explicit fetch.
	ModeManual Mode = "manual"
)

// ErrVoiceResponsesDisabled is returned by Speak while spoken replies are not
// required; no state changes.
var ErrVoiceResponsesDisabled = errors.New("voice responses are not enabled")

// ErrVoiceInputInactive mirrors the coordinator's precondition for Dequeue.
var ErrVoiceInputInactive = wait.ErrVoiceInputInactive

// Waiter runs a bounded wait for new input. Implemented by *wait.Coordinator.
type Waiter interface {
	Wait(ctx context.Context) (wait.Result, error)
}

// Gate composes the store, preferences, hub and coordinator into the
// priority-ordered decision function.
type Gate struct {
	store  store.Store
	prefs  *prefs.Preferences
	hub    *hub.Hub
	waiter Waiter
	mode   Mode
	logger *slog.Logger

	mu            sync.Mutex
	lastToolUseAt time.Time
	lastSpeakAt   time.Time
}

// New creates a gate. A nil waiter disables the stop checkpoint's inline
// auto-wait (stop then blocks with a wait followup even in auto mode).
func New(s store.Store, p *prefs.Preferences, h *hub.Hub, w Waiter, mode Mode, logger *slog.Logger) *Gate {
	if mode != ModeManual {
		mode = ModeAutoDeliver
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:  s,
		prefs:  p,
		hub:    h,
		waiter: w,
		mode:   mode,
		logger: logger,
	}
}

// Validate evaluates the rule chain for the attempted action. Rules are
// strictly ordered; the first match wins.
func (g *Gate) Validate(ctx context.Context, action Action) Decision {
	state := g.prefs.Snapshot()
	decision := g.validate(ctx, action, state)

	g.logger.Info("checkpoint evaluated",
		"action", action,
		"approved", decision.Approved,
		"followup", decision.RequiredFollowup,
		"input_active", state.VoiceInputActive,
		"responses_enabled", state.VoiceResponsesEnabled,
	)
	return decision
}

func (g *Gate) validate(ctx context.Context, action Action, state prefs.State) Decision {
	// Rule 1: pending input outranks everything.
	if state.VoiceInputActive && g.store.HasPending() {
		if g.mode == ModeAutoDeliver {
			if delivered := g.store.DeliverPending(); len(delivered) > 0 {
				return block("", deliveredReason(delivered))
			}
			// Raced away by a concurrent dequeue; fall through.
		} else {
			return block(FollowupDequeue,
				"The user has sent new voice input. Dequeue it and respond before doing anything else.")
		}
	}

	// Rule 2: delivered-but-unanswered input blocks everything except the
	// speak checkpoint itself, which is the escape hatch.
	if state.VoiceResponsesEnabled && action != ActionSpeak && g.store.HasDelivered() {
		return block(FollowupSpeak,
			"The user is waiting to hear a response to their voice input. Speak a reply before continuing.")
	}

	switch action {
	case ActionToolUse, ActionPostTool:
		g.recordToolUse()
		return approve("")

	case ActionWait:
		if state.VoiceResponsesEnabled && g.toolUseUnspoken() {
			return block(FollowupSpeak,
				"You used a tool since you last spoke. Speak a response before waiting for input.")
		}
		return approve("")

	case ActionSpeak:
		return approve("")

	case ActionStop:
		return g.validateStop(ctx, state)

	default:
		// ParseAction guards the wire; an unknown action here is a
		// programming error, so refuse conservatively.
		return block("", fmt.Sprintf("unknown action %q", action))
	}
}

// validateStop is the last interception point before the assistant finishes.
func (g *Gate) validateStop(ctx context.Context, state prefs.State) Decision {
	if state.VoiceResponsesEnabled && g.toolUseUnspoken() {
		return block(FollowupSpeak,
			"You used a tool since you last spoke. Speak a response before stopping.")
	}

	if state.VoiceInputActive {
		if g.mode == ModeManual || g.waiter == nil {
			return block(FollowupWait,
				"Voice input is active. Wait for new input before stopping.")
		}

		res, err := g.waiter.Wait(ctx)
		if err != nil {
			// Fail open: a fault inside the inline wait must not leave the
			// host permanently unable to stop.
			g.logger.Warn("inline wait failed during stop, approving", "error", err)
			return approve(fmt.Sprintf("wait before stop failed (%v); stopping anyway", err))
		}
		if len(res.Utterances) > 0 {
			return block("", deliveredReason(res.Utterances))
		}
		if res.Deactivated {
			return approve("voice input was deactivated while waiting; nothing to deliver")
		}
		return approve(res.Message)
	}

	return approve("")
}

// Speak records assistant output: it appends the conversation message, marks
// every delivered utterance responded, and notifies observers.
func (g *Gate) Speak(text string) (domain.ConversationMessage, error) {
	if !g.prefs.VoiceResponsesEnabled() {
		return domain.ConversationMessage{}, ErrVoiceResponsesDisabled
	}

	msg, err := g.store.AppendAssistant(text)
	if err != nil {
		return domain.ConversationMessage{}, err
	}
	responded := g.store.RespondDelivered()
	g.recordSpeak()
	g.hub.BroadcastSpeak(text)

	g.logger.Info("assistant spoke", "message_id", msg.ID, "responded", responded)
	return msg, nil
}

// Dequeue is the manual-mode fetch: it delivers all pending utterances.
func (g *Gate) Dequeue() ([]domain.Utterance, error) {
	if !g.prefs.VoiceInputActive() {
		return nil, ErrVoiceInputInactive
	}
	return g.store.DeliverPending(), nil
}

// Mode returns the configured delivery mode.
func (g *Gate) Mode() Mode {
	return g.mode
}

func (g *Gate) recordToolUse() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastToolUseAt = time.Now()
}

func (g *Gate) recordSpeak() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSpeakAt = time.Now()
}

// toolUseUnspoken reports whether a tool ran more recently than the last
// spoken reply (or no reply has ever been spoken).
func (g *Gate) toolUseUnspoken() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastToolUseAt.IsZero() {
		return false
	}
	return g.lastSpeakAt.IsZero() || g.lastToolUseAt.After(g.lastSpeakAt)
}

// deliveredReason embeds dequeued utterances in a block reason so delivery
// and notification happen in one round trip.
func deliveredReason(utterances []domain.Utterance) string {
	var b strings.Builder
	if len(utterances) == 1 {
		b.WriteString("The user said: ")
		b.WriteString(utterances[0].Text)
	} else {
		b.WriteString("The user said:\n")
		for _, u := range utterances {
			b.WriteString("- ")
			b.WriteString(u.Text)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nRespond to this input before taking further action.")
	return b.String()
}
