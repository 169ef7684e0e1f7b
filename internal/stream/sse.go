// Package stream maintains the resumable server-push subscription for a
// research session: connect, resume from cursor, reconnect with fixed delay,
// and teardown.
package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/ChanlerDev/deep-research/internal/api"
)

// Event is one raw server-sent event: optional id, optional name, and the
// accumulated data payload. Comment lines (heartbeats) never surface here.
type Event struct {
	ID   string
	Name string
	Data string
}

const maxLineBytes = 1 << 20

// readEvents parses a newline-delimited event stream and invokes handle for
// each dispatched event. A non-nil error from handle stops reading and is
// returned as-is.
func readEvents(r io.Reader, handle func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var cur Event
	var data []string

	dispatch := func() error {
		if cur.ID == "" && cur.Name == "" && len(data) == 0 {
			return nil
		}
		cur.Data = strings.Join(data, "\n")
		err := handle(cur)
		cur = Event{}
		data = nil
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// Comment, e.g. the server's heartbeat. Ignored.
		case strings.HasPrefix(line, "id:"):
			cur.ID = strings.TrimPrefix(strings.TrimPrefix(line, "id:"), " ")
		case strings.HasPrefix(line, "event:"):
			cur.Name = strings.TrimPrefix(strings.TrimPrefix(line, "event:"), " ")
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := dispatch(); err != nil {
		return err
	}
	return scanner.Err()
}

const (
	KindMessage = "message"
	KindEvent   = "event"
)

// Delta is one incremental unit of new session information: a chat message
// or a workflow event, tagged by Kind.
type Delta struct {
	Kind       string             `json:"kind"`
	ResearchID string             `json:"researchId"`
	SequenceNo int64              `json:"sequenceNo,omitempty"`
	Message    *api.ChatMessage   `json:"message,omitempty"`
	Event      *api.WorkflowEvent `json:"event,omitempty"`
}

const doneSentinel = "[DONE]"

// isTerminator reports whether the payload is the end-of-stream sentinel,
// and extracts the final status it may carry ("[DONE] COMPLETED").
func isTerminator(data string) (string, bool) {
	if !strings.HasPrefix(data, doneSentinel) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(data, doneSentinel)), true
}

// parseDelta decodes a stream payload. Malformed payloads report ok=false
// and are dropped by the caller without tearing down the connection.
func parseDelta(data string) (Delta, bool) {
	var d Delta
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return Delta{}, false
	}
	switch d.Kind {
	case KindMessage:
		if d.Message == nil {
			return Delta{}, false
		}
	case KindEvent:
		if d.Event == nil {
			return Delta{}, false
		}
	default:
		return Delta{}, false
	}
	return d, true
}
