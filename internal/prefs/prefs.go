// Package prefs owns the process-wide voice preference state.
//
// Preferences are the only shared mutable state outside the message store.
// All mutation goes through the setters here so the "reset when the last
// observer disconnects" rule stays centralized, and so first-writer-wins
// semantics hold under concurrent HTTP requests.
package prefs

import (
	"sync"
)

// State is an immutable snapshot of the preference flags.
type State struct {
	VoiceInputActive      bool `json:"voice_input_active"`
	VoiceResponsesEnabled bool `json:"voice_responses_enabled"`
}

// Preferences holds the two voice flags behind a mutex.
// Both default to false: no enforcement until a browser opts in.
type Preferences struct {
	mu    sync.Mutex
	state State
}

// New returns preferences with both flags off.
func New() *Preferences {
	return &Preferences{}
}

// Snapshot returns the current flags.
func (p *Preferences) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// VoiceInputActive reports whether new input should be accepted and enforced.
func (p *Preferences) VoiceInputActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.VoiceInputActive
}

// VoiceResponsesEnabled reports whether a spoken reply is required before the
// assistant may proceed.
func (p *Preferences) VoiceResponsesEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.VoiceResponsesEnabled
}

// Update applies a partial update. Nil fields are left untouched.
// Returns the resulting state.
func (p *Preferences) Update(inputActive, responsesEnabled *bool) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if inputActive != nil {
		p.state.VoiceInputActive = *inputActive
	}
	if responsesEnabled != nil {
		p.state.VoiceResponsesEnabled = *responsesEnabled
	}
	return p.state
}

// Reset forces both flags back to false. Called by the hub when the observer
// set becomes empty: enforcement driven by preferences nobody can act on must
// not wedge the host.
func (p *Preferences) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = State{}
}
