package research

import (
	"testing"
	"time"

	"github.com/ChanlerDev/deep-research/internal/api"
)

func at(sec int) api.Time {
	return api.Time{Time: time.Date(2026, 3, 14, 10, 0, sec, 0, time.UTC)}
}

func msg(id int64, role, content string, sec int) api.ChatMessage {
	return api.ChatMessage{ID: id, Role: role, Content: content, CreateTime: at(sec)}
}

func evt(id, parent int64, title string, sec int) api.WorkflowEvent {
	return api.WorkflowEvent{
		ID: id, Type: "RESEARCH", Title: title,
		ParentEventID: parent, SequenceNo: id, CreateTime: at(sec),
	}
}

// TestStoreApplyDedup verifies applying the same delta twice changes nothing
// the second time.
func TestStoreApplyDedup(t *testing.T) {
	s := NewStore("r1")

	if !s.ApplyMessage(msg(1, "user", "hi", 1)) {
		t.Fatal("first apply should report new")
	}
	if s.ApplyMessage(msg(1, "user", "hi", 1)) {
		t.Error("duplicate message should be absorbed")
	}
	if len(s.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(s.Messages))
	}

	if !s.ApplyEvent(evt(10, 0, "scope", 2)) {
		t.Fatal("first event apply should report new")
	}
	if s.ApplyEvent(evt(10, 0, "scope", 2)) {
		t.Error("duplicate event should be absorbed")
	}
	if len(s.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(s.Events))
	}
}

// TestStoreMessageAndEventIDsDoNotCollide checks a message and an event with
// the same numeric id are both kept.
func TestStoreMessageAndEventIDsDoNotCollide(t *testing.T) {
	s := NewStore("r1")
	s.ApplyMessage(msg(7, "assistant", "working", 1))
	if !s.ApplyEvent(evt(7, 0, "search", 2)) {
		t.Error("event id 7 should not collide with message id 7")
	}
}

// TestStoreSeedResetsDedup verifies a snapshot replaces contents wholesale
// and the dedup index with it: ids from a previous session never leak.
func TestStoreSeedResetsDedup(t *testing.T) {
	s := NewStore("a")
	s.ApplyMessage(msg(1, "user", "topic a", 1))
	s.ApplyEvent(evt(5, 0, "scope a", 2))

	s.Seed(api.MessagesResponse{
		ID:     "b",
		Status: api.StatusRunning,
		Messages: []api.ChatMessage{
			msg(1, "user", "topic b", 3),
		},
	})

	if s.ID != "b" {
		t.Fatalf("expected store id b, got %q", s.ID)
	}
	if len(s.Messages) != 1 || s.Messages[0].Content != "topic b" {
		t.Fatalf("snapshot should replace messages, got %v", s.Messages)
	}
	if len(s.Events) != 0 {
		t.Fatal("snapshot should replace events")
	}
	// id 5 belonged to session a only; in session b it is a fresh event.
	if !s.ApplyEvent(evt(5, 0, "scope b", 4)) {
		t.Error("event id from the previous session should not be absorbed")
	}
	// id 1 is in the new snapshot, so its replay is a duplicate.
	if s.ApplyMessage(msg(1, "user", "topic b", 3)) {
		t.Error("replay of a snapshot message should be absorbed")
	}
}

// TestStoreAppendLocalBypassesDedup verifies optimistic local ids never enter
// the dedup index, so a server message can never be mistaken for one.
func TestStoreAppendLocalBypassesDedup(t *testing.T) {
	s := NewStore("r1")
	local := msg(99, "user", "optimistic", 1)
	s.AppendLocal(local)
	if !s.ApplyMessage(msg(99, "assistant", "server", 2)) {
		t.Error("server message should apply even when a local id matches")
	}
	if len(s.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.Messages))
	}
}

// TestStoreMergeStatus covers the merge rules: model binding is immutable,
// token totals only grow, timestamps only fill in, and an identical poll is
// a no-op.
func TestStoreMergeStatus(t *testing.T) {
	s := NewStore("r1")
	first := api.StatusResponse{
		ID: "r1", Title: "quantum batteries", Status: api.StatusRunning,
		ModelID: "gpt-5", TotalInputTokens: 100, TotalOutputTokens: 50,
		StartTime: at(0),
	}
	if !s.MergeStatus(first) {
		t.Fatal("first merge should report change")
	}
	if s.MergeStatus(first) {
		t.Error("identical merge should be a no-op")
	}

	second := first
	second.ModelID = "other-model"
	second.TotalInputTokens = 40 // stale, lower than current
	second.TotalOutputTokens = 80
	if !s.MergeStatus(second) {
		t.Fatal("token growth should report change")
	}
	if s.ModelID != "gpt-5" {
		t.Errorf("model binding must not change once set, got %q", s.ModelID)
	}
	if s.Metrics.TotalInputTokens != 100 {
		t.Errorf("token totals must not regress, got %d", s.Metrics.TotalInputTokens)
	}
	if s.Metrics.TotalOutputTokens != 80 {
		t.Errorf("expected output tokens 80, got %d", s.Metrics.TotalOutputTokens)
	}
}

// TestStoreFinalReport picks the last assistant message.
func TestStoreFinalReport(t *testing.T) {
	s := NewStore("r1")
	if s.FinalReport() != nil {
		t.Fatal("empty store has no report")
	}
	s.ApplyMessage(msg(1, "user", "topic", 1))
	s.ApplyMessage(msg(2, "assistant", "clarifying question", 2))
	s.ApplyMessage(msg(3, "user", "answer", 3))
	s.ApplyMessage(msg(4, "assistant", "# Final Report", 4))
	got := s.FinalReport()
	if got == nil || got.Content != "# Final Report" {
		t.Fatalf("expected final report, got %v", got)
	}
}
