package research

import (
	"testing"

	"github.com/ChanlerDev/deep-research/internal/api"
)

// TestMergeTimelineInterleaving checks chronological interleaving: events are
// grouped before the first message that postdates them.
func TestMergeTimelineInterleaving(t *testing.T) {
	messages := []api.ChatMessage{
		msg(1, "user", "topic", 10),
		msg(2, "assistant", "report", 30),
	}
	events := []api.WorkflowEvent{
		evt(100, 0, "queued", 5),
		evt(101, 0, "scope", 15),
		evt(102, 0, "search", 25),
		evt(103, 0, "wrap-up", 35),
	}

	items := MergeTimeline(messages, events)
	if len(items) != 5 {
		t.Fatalf("expected 5 timeline items, got %d", len(items))
	}

	assertGroup := func(i int, ids ...int64) {
		t.Helper()
		if items[i].Message != nil {
			t.Fatalf("item %d: expected event group, got message %q", i, items[i].Message.Content)
		}
		if len(items[i].Group) != len(ids) {
			t.Fatalf("item %d: expected %d events, got %d", i, len(ids), len(items[i].Group))
		}
		for j, id := range ids {
			if items[i].Group[j].ID != id {
				t.Errorf("item %d event %d: got id %d, want %d", i, j, items[i].Group[j].ID, id)
			}
		}
	}
	assertMessage := func(i int, content string) {
		t.Helper()
		if items[i].Message == nil || items[i].Message.Content != content {
			t.Fatalf("item %d: expected message %q, got %v", i, content, items[i])
		}
	}

	assertGroup(0, 100)
	assertMessage(1, "topic")
	assertGroup(2, 101, 102)
	assertMessage(3, "report")
	assertGroup(4, 103)
}

// TestMergeTimelineNoEmptyGroups verifies consecutive messages do not produce
// empty event groups between them.
func TestMergeTimelineNoEmptyGroups(t *testing.T) {
	messages := []api.ChatMessage{
		msg(1, "user", "topic", 10),
		msg(2, "assistant", "clarify?", 11),
		msg(3, "user", "answer", 12),
	}
	items := MergeTimeline(messages, nil)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		if item.Message == nil {
			t.Errorf("item %d: unexpected event group", i)
		}
	}
}

// TestMergeTimelineEventsOnly covers the window before the first message
// lands from the server.
func TestMergeTimelineEventsOnly(t *testing.T) {
	events := []api.WorkflowEvent{
		evt(2, 1, "child", 2),
		evt(1, 0, "root", 1),
	}
	items := MergeTimeline(nil, events)
	if len(items) != 1 {
		t.Fatalf("expected a single trailing group, got %d items", len(items))
	}
	group := items[0].Group
	if len(group) != 2 || group[0].ID != 1 || group[1].ID != 2 {
		t.Fatalf("expected tree-ordered group [1 2], got %v", group)
	}
	if group[1].Depth != 1 {
		t.Errorf("child should be nested, got depth %d", group[1].Depth)
	}
}

// TestMergeTimelineEmpty returns no items for an empty store.
func TestMergeTimelineEmpty(t *testing.T) {
	if items := MergeTimeline(nil, nil); len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}
