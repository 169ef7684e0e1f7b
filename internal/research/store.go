// Package research holds the client-side synchronization core: per-session
// state, delta deduplication, event tree shaping, timeline merging, and the
// controllers that drive single-session and arena views.
package research

import (
	"fmt"
	"time"

	"github.com/ChanlerDev/deep-research/internal/api"
)

// Metrics are cumulative token counts and run timestamps. They only move
// forward or fill in; identical status polls are no-ops.
type Metrics struct {
	TotalInputTokens  int64
	TotalOutputTokens int64
	StartTime         time.Time
	CompleteTime      time.Time
}

// Store is the authoritative client-side state of one research session. A
// Store is owned by exactly one controller, which serializes access; the
// methods themselves do no locking.
type Store struct {
	ID       string
	Title    string
	Status   api.Status
	ModelID  string
	Messages []api.ChatMessage
	Events   []api.WorkflowEvent
	Metrics  Metrics

	// seen indexes every message/event id observed in this store's lifetime,
	// including ids from Seed. Rebuilt only by Seed.
	seen map[string]struct{}
}

func NewStore(id string) *Store {
	return &Store{
		ID:   id,
		seen: make(map[string]struct{}),
	}
}

func messageKey(id int64) string { return fmt.Sprintf("msg-%d", id) }
func eventKey(id int64) string   { return fmt.Sprintf("evt-%d", id) }

// Seed replaces the store contents wholesale from a snapshot. The dedup index
// is reset to exactly the ids present in the snapshot, so a later replay of
// pre-snapshot deltas is absorbed while post-snapshot deltas still apply.
func (s *Store) Seed(snap api.MessagesResponse) {
	if snap.ID != "" {
		s.ID = snap.ID
	}
	s.Status = snap.Status
	s.Messages = append([]api.ChatMessage(nil), snap.Messages...)
	s.Events = append([]api.WorkflowEvent(nil), snap.Events...)
	s.Metrics = Metrics{
		TotalInputTokens:  snap.TotalInputTokens,
		TotalOutputTokens: snap.TotalOutputTokens,
		StartTime:         snap.StartTime.Time,
		CompleteTime:      snap.CompleteTime.Time,
	}
	s.seen = make(map[string]struct{}, len(snap.Messages)+len(snap.Events))
	for _, m := range snap.Messages {
		s.seen[messageKey(m.ID)] = struct{}{}
	}
	for _, e := range snap.Events {
		s.seen[eventKey(e.ID)] = struct{}{}
	}
}

// ApplyEvent inserts evt unless its id has already been seen. Arrival order
// is preserved; display ordering is the timeline merger's concern. Returns
// true when the event was new.
func (s *Store) ApplyEvent(evt api.WorkflowEvent) bool {
	key := eventKey(evt.ID)
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.Events = append(s.Events, evt)
	return true
}

// ApplyMessage inserts msg unless its id has already been seen. Returns true
// when the message was new; the caller uses that as the signal to re-sync
// status (message arrival is the reliable hint that status changed).
func (s *Store) ApplyMessage(msg api.ChatMessage) bool {
	key := messageKey(msg.ID)
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.Messages = append(s.Messages, msg)
	return true
}

// AppendLocal appends an optimistic, client-synthesized user message. Local
// ids never enter the dedup index: they are a rendering convenience until the
// server's own message delta arrives under its real id.
func (s *Store) AppendLocal(msg api.ChatMessage) {
	s.Messages = append(s.Messages, msg)
}

// MergeStatus folds a status snapshot into the store. Only differing fields
// are written; metrics never regress. Returns true when anything changed so
// the controller can decide whether to announce it.
func (s *Store) MergeStatus(st api.StatusResponse) bool {
	changed := false
	if st.Status != "" && st.Status != s.Status {
		s.Status = st.Status
		changed = true
	}
	if st.Title != "" && st.Title != s.Title {
		s.Title = st.Title
		changed = true
	}
	// Model binding is immutable once set.
	if s.ModelID == "" && st.ModelID != "" {
		s.ModelID = st.ModelID
		changed = true
	}
	if st.TotalInputTokens > s.Metrics.TotalInputTokens {
		s.Metrics.TotalInputTokens = st.TotalInputTokens
		changed = true
	}
	if st.TotalOutputTokens > s.Metrics.TotalOutputTokens {
		s.Metrics.TotalOutputTokens = st.TotalOutputTokens
		changed = true
	}
	if s.Metrics.StartTime.IsZero() && !st.StartTime.IsZero() {
		s.Metrics.StartTime = st.StartTime.Time
		changed = true
	}
	if s.Metrics.CompleteTime.IsZero() && !st.CompleteTime.IsZero() {
		s.Metrics.CompleteTime = st.CompleteTime.Time
		changed = true
	}
	return changed
}

// FinalReport returns the last assistant message, if any.
func (s *Store) FinalReport() *api.ChatMessage {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "assistant" {
			return &s.Messages[i]
		}
	}
	return nil
}
