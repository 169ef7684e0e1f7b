package research

import (
	"sort"

	"github.com/ChanlerDev/deep-research/internal/api"
)

// TimelineItem is one entry of the rendered feed: either a chat message or a
// group of workflow events, never both. Consecutive events between two
// messages belong to the assistant turn that follows them, so they render as
// one group instead of interleaving every micro-step with chat bubbles.
type TimelineItem struct {
	Message *api.ChatMessage
	Group   []*EventNode
}

// MergeTimeline interleaves messages and event groups chronologically:
// events created at or before a message render ahead of it, events after the
// last message form a trailing group, and empty groups are omitted.
func MergeTimeline(messages []api.ChatMessage, events []api.WorkflowEvent) []TimelineItem {
	msgs := append([]api.ChatMessage(nil), messages...)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreateTime.Before(msgs[j].CreateTime.Time)
	})
	evts := sortEventsChronologically(events)

	var items []TimelineItem
	eventIdx := 0

	flush := func(until *api.ChatMessage) {
		var group []api.WorkflowEvent
		for eventIdx < len(evts) {
			evt := evts[eventIdx]
			if until != nil && evt.CreateTime.After(until.CreateTime.Time) {
				break
			}
			group = append(group, evt)
			eventIdx++
		}
		if len(group) > 0 {
			items = append(items, TimelineItem{Group: FlattenTree(BuildEventTree(group))})
		}
	}

	for i := range msgs {
		flush(&msgs[i])
		items = append(items, TimelineItem{Message: &msgs[i]})
	}
	flush(nil)
	return items
}

// sortEventsChronologically orders events by server sequence first and
// wall-clock second. Sequence numbers are the server's own ordering and win
// over timestamps whenever present.
func sortEventsChronologically(events []api.WorkflowEvent) []api.WorkflowEvent {
	out := append([]api.WorkflowEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SequenceNo != out[j].SequenceNo {
			return out[i].SequenceNo < out[j].SequenceNo
		}
		return out[i].CreateTime.Before(out[j].CreateTime.Time)
	})
	return out
}
