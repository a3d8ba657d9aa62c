// Package wait implements the bounded polling coordinator that holds the
// assistant while new voice input may still arrive.
//
// The loop is deliberately a short-interval poll rather than a blocking
// receive: preference toggles, new input, and observer disconnects interleave
// between ticks, and cancellation latency is bounded by the poll interval.
package wait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/akorchev/voicegate/internal/domain"
	"github.com/akorchev/voicegate/internal/hub"
	"github.com/akorchev/voicegate/internal/prefs"
	"github.com/akorchev/voicegate/internal/store"
)

// ErrVoiceInputInactive is returned when a wait is requested while voice
// input is off. The store is left untouched.
var ErrVoiceInputInactive = errors.New("voice input is not active")

const (
	// DefaultPollInterval is how often the pending set is checked.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultTimeout caps the total wall-clock wait.
	DefaultTimeout = 60 * time.Second
)

// Result is the outcome of one wait. Exactly one of three shapes occurs:
// delivered utterances, a timeout with an advisory message, or a cooperative
// deactivation with an empty set. Deactivation is not an error.
type Result struct {
	Utterances  []domain.Utterance `json:"utterances"`
	Elapsed     time.Duration      `json:"elapsed"`
	TimedOut    bool               `json:"timed_out,omitempty"`
	Deactivated bool               `json:"deactivated,omitempty"`
	Message     string             `json:"message,omitempty"`
}

// Config tunes the coordinator. Zero values fall back to defaults.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	// Cue is fired once when a wait begins, as an audible signal that the
	// engine is listening. Failure is logged, never fatal. When nil, the
	// cue is a hub broadcast and the browser plays the chime.
	Cue    func() error
	Logger *slog.Logger
}

// Coordinator polls the store for newly pending utterances.
type Coordinator struct {
	store    store.Store
	prefs    *prefs.Preferences
	hub      *hub.Hub
	interval time.Duration
	timeout  time.Duration
	cue      func() error
	logger   *slog.Logger
}

// New creates a coordinator over the given store, preferences and hub.
func New(s store.Store, p *prefs.Preferences, h *hub.Hub, cfg Config) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Cue == nil {
		cfg.Cue = func() error {
			h.BroadcastCue()
			return nil
		}
	}
	return &Coordinator{
		store:    s,
		prefs:    p,
		hub:      h,
		interval: cfg.PollInterval,
		timeout:  cfg.Timeout,
		cue:      cfg.Cue,
		logger:   cfg.Logger,
	}
}

// Wait blocks until pending input arrives, voice input is deactivated, the
// context is cancelled, or the timeout elapses.
func (c *Coordinator) Wait(ctx context.Context) (Result, error) {
	if !c.prefs.VoiceInputActive() {
		return Result{}, ErrVoiceInputInactive
	}

	start := time.Now()
	c.hub.BroadcastWaitStatus(true)
	defer c.hub.BroadcastWaitStatus(false)

	if c.cue != nil {
		if err := c.cue(); err != nil {
			c.logger.Warn("wait cue failed", "error", err)
		}
	}

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		// Deactivation is advisory: checked once per tick, so cancellation
		// latency is bounded by the poll interval.
		if !c.prefs.VoiceInputActive() {
			c.logger.Info("wait ended, voice input deactivated", "elapsed", time.Since(start))
			return Result{
				Elapsed:     time.Since(start),
				Deactivated: true,
				Message:     "voice input was deactivated while waiting",
			}, nil
		}

		if delivered := c.deliverPending(); len(delivered) > 0 {
			c.logger.Info("wait ended with new input",
				"count", len(delivered),
				"elapsed", time.Since(start),
			)
			return Result{Utterances: delivered, Elapsed: time.Since(start)}, nil
		}

		select {
		case <-ctx.Done():
			return Result{
				Elapsed:     time.Since(start),
				Deactivated: true,
				Message:     "wait cancelled",
			}, nil
		case <-deadline.C:
			c.logger.Info("wait timed out", "timeout", c.timeout)
			return Result{
				Elapsed:  c.timeout,
				TimedOut: true,
				Message:  fmt.Sprintf("no new voice input arrived within %s", c.timeout),
			}, nil
		case <-ticker.C:
		}
	}
}

// deliverPending snapshots the pending set and advances each utterance
// individually. No lock spans the check and the transition: a concurrent
// Wait may observe the same snapshot, and the loser's transition is a
// no-op, so each utterance lands in exactly one result.
func (c *Coordinator) deliverPending() []domain.Utterance {
	pending := c.store.PendingUtterances()
	var delivered []domain.Utterance
	for _, u := range pending {
		if c.store.Transition(u.ID, domain.StatusDelivered) {
			u.Status = domain.StatusDelivered
			delivered = append(delivered, u)
		}
	}
	return delivered
}
