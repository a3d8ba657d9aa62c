package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/akorchev/voicegate/internal/domain"
)

func TestAppend_RejectsEmptyText(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	for _, text := range []string{"", "   ", "\n\t "} {
		if _, err := m.Append(text); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Append(%q) error = %v, want ErrEmptyText", text, err)
		}
	}
	if len(m.RecentUtterances(0)) != 0 {
		t.Error("rejected append should leave the store empty")
	}
	if len(m.RecentConversation(0)) != 0 {
		t.Error("rejected append should leave the conversation empty")
	}
}

func TestAppendAssistant_RejectsEmptyText(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	if _, err := m.AppendAssistant("  "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("AppendAssistant error = %v, want ErrEmptyText", err)
	}
	if len(m.RecentConversation(0)) != 0 {
		t.Error("rejected append should leave the conversation empty")
	}
}

func TestAppend_TrimsAndStartsPending(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	u, err := m.Append("  hello there  ")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if u.Text != "hello there" {
		t.Errorf("Text = %q, want trimmed", u.Text)
	}
	if u.Status != domain.StatusPending {
		t.Errorf("Status = %q, want pending", u.Status)
	}
	if u.ID == "" {
		t.Error("expected a generated ID")
	}

	conv := m.RecentConversation(0)
	if len(conv) != 1 || conv[0].Role != domain.RoleUser || conv[0].ID != u.ID {
		t.Errorf("expected one mirrored user message, got %+v", conv)
	}
}

func TestTransition_ForwardOnly(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	u, _ := m.Append("hi")

	if m.Transition(u.ID, domain.StatusResponded) {
		t.Error("pending -> responded should not skip a step")
	}
	if !m.Transition(u.ID, domain.StatusDelivered) {
		t.Error("pending -> delivered should advance")
	}
	if m.Transition(u.ID, domain.StatusDelivered) {
		t.Error("repeated delivered should be a no-op")
	}
	if m.Transition(u.ID, domain.StatusPending) {
		t.Error("regression to pending should be a no-op")
	}
	if !m.Transition(u.ID, domain.StatusResponded) {
		t.Error("delivered -> responded should advance")
	}
	if m.Transition(u.ID, domain.StatusDelivered) {
		t.Error("responded is terminal")
	}
}

func TestTransition_UnknownIDNoOp(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	if m.Transition("ut-missing", domain.StatusDelivered) {
		t.Error("unknown id should be a no-op")
	}
}

func TestConversation_MirrorsUtteranceStatus(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	u, _ := m.Append("check my status")

	m.Transition(u.ID, domain.StatusDelivered)
	conv := m.RecentConversation(0)
	if conv[0].Status != domain.StatusDelivered {
		t.Errorf("user message status = %q, want delivered", conv[0].Status)
	}

	m.Transition(u.ID, domain.StatusResponded)
	conv = m.RecentConversation(0)
	if conv[0].Status != domain.StatusResponded {
		t.Errorf("user message status = %q, want responded", conv[0].Status)
	}
}

func TestRecentConversation_OldestFirstNonDecreasing(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	m.Append("one")
	m.AppendAssistant("two")
	m.Append("three")
	m.AppendAssistant("four")

	conv := m.RecentConversation(0)
	if len(conv) != 4 {
		t.Fatalf("len = %d, want 4", len(conv))
	}
	for i := 1; i < len(conv); i++ {
		if conv[i].CreatedAt.Before(conv[i-1].CreatedAt) {
			t.Errorf("timestamps decrease at index %d", i)
		}
	}
	if conv[0].Text != "one" || conv[3].Text != "four" {
		t.Errorf("unexpected order: %q ... %q", conv[0].Text, conv[3].Text)
	}

	// Limit keeps the most recent messages, still oldest first.
	tail := m.RecentConversation(2)
	if len(tail) != 2 || tail[0].Text != "three" || tail[1].Text != "four" {
		t.Errorf("RecentConversation(2) = %+v", tail)
	}
}

func TestRecentUtterances_NewestFirst(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	m.Append("first")
	m.Append("second")
	m.Append("third")

	got := m.RecentUtterances(2)
	if len(got) != 2 || got[0].Text != "third" || got[1].Text != "second" {
		t.Errorf("RecentUtterances(2) = %+v", got)
	}
}

func TestDeliverPending_OldestFirst(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	m.Append("a")
	m.Append("b")

	delivered := m.DeliverPending()
	if len(delivered) != 2 || delivered[0].Text != "a" || delivered[1].Text != "b" {
		t.Errorf("DeliverPending() = %+v", delivered)
	}
	if m.HasPending() {
		t.Error("no pending should remain")
	}
	if !m.HasDelivered() {
		t.Error("delivered set should be non-empty")
	}

	// Second call finds nothing.
	if again := m.DeliverPending(); len(again) != 0 {
		t.Errorf("second DeliverPending() = %+v, want empty", again)
	}
}

func TestRespondDelivered_SkipsPending(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	first, _ := m.Append("answered")
	m.Transition(first.ID, domain.StatusDelivered)
	m.Append("still pending")

	if n := m.RespondDelivered(); n != 1 {
		t.Errorf("RespondDelivered() = %d, want 1", n)
	}
	if !m.HasPending() {
		t.Error("pending utterance must not be marked responded")
	}
	if m.HasDelivered() {
		t.Error("delivered utterance should now be responded")
	}
}

func TestClear_SafeAgainstInFlightTransitions(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	u, _ := m.Append("racing")

	// Simulates a wait loop holding a stale snapshot across Clear.
	m.Clear()
	if m.Transition(u.ID, domain.StatusDelivered) {
		t.Error("transition after Clear should be a no-op")
	}
	if len(m.RecentUtterances(0)) != 0 || len(m.RecentConversation(0)) != 0 {
		t.Error("Clear should empty both collections")
	}
}

func TestMemory_ConcurrentAppendAndTransition(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				u, err := m.Append("concurrent")
				if err != nil {
					t.Errorf("Append failed: %v", err)
					return
				}
				m.Transition(u.ID, domain.StatusDelivered)
				m.RecentConversation(10)
			}
		}()
	}
	wg.Wait()

	if got := len(m.RecentUtterances(0)); got != 400 {
		t.Errorf("utterance count = %d, want 400", got)
	}
}
