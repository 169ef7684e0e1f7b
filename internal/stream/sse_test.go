package stream

import (
	"errors"
	"strings"
	"testing"
)

// TestReadEvents parses a realistic stream fragment: ids, named events,
// heartbeat comments, and a final unterminated event flushed at EOF.
func TestReadEvents(t *testing.T) {
	raw := strings.Join([]string{
		":heartbeat",
		"id: 12",
		"event: message",
		`data: {"kind":"message"}`,
		"",
		":heartbeat",
		"",
		"id: 13",
		"event: event",
		`data: {"kind":"event"}`,
		"",
		"data: [DONE] COMPLETED",
		"",
	}, "\n")

	var got []Event
	err := readEvents(strings.NewReader(raw), func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(got), got)
	}
	if got[0].ID != "12" || got[0].Name != "message" || got[0].Data != `{"kind":"message"}` {
		t.Errorf("unexpected first event %+v", got[0])
	}
	if got[1].ID != "13" || got[1].Name != "event" {
		t.Errorf("unexpected second event %+v", got[1])
	}
	if got[2].ID != "" || got[2].Data != "[DONE] COMPLETED" {
		t.Errorf("unexpected terminator event %+v", got[2])
	}
}

// TestReadEventsMultiLineData joins continued data lines with newlines.
func TestReadEventsMultiLineData(t *testing.T) {
	raw := "data: first\ndata: second\n\n"
	var got []Event
	if err := readEvents(strings.NewReader(raw), func(ev Event) error {
		got = append(got, ev)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Data != "first\nsecond" {
		t.Fatalf("expected joined data, got %+v", got)
	}
}

// TestReadEventsFlushesAtEOF delivers a trailing event that the server never
// terminated with a blank line.
func TestReadEventsFlushesAtEOF(t *testing.T) {
	var got []Event
	if err := readEvents(strings.NewReader("id: 5\ndata: tail"), func(ev Event) error {
		got = append(got, ev)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "5" || got[0].Data != "tail" {
		t.Fatalf("expected trailing event flushed, got %+v", got)
	}
}

// TestReadEventsHandlerErrorStops propagates the handler's error immediately.
func TestReadEventsHandlerErrorStops(t *testing.T) {
	sentinel := errors.New("stop")
	var calls int
	err := readEvents(strings.NewReader("data: a\n\ndata: b\n\n"), func(Event) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("reading should stop after the error, got %d calls", calls)
	}
}

func TestIsTerminator(t *testing.T) {
	cases := []struct {
		data   string
		status string
		done   bool
	}{
		{"[DONE] COMPLETED", "COMPLETED", true},
		{"[DONE] FAILED", "FAILED", true},
		{"[DONE]", "", true},
		{`{"kind":"message"}`, "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		status, done := isTerminator(tc.data)
		if status != tc.status || done != tc.done {
			t.Errorf("isTerminator(%q) = (%q, %v), want (%q, %v)",
				tc.data, status, done, tc.status, tc.done)
		}
	}
}

func TestParseDelta(t *testing.T) {
	d, ok := parseDelta(`{"kind":"message","researchId":"r1","message":{"id":7,"role":"assistant","content":"hi","createTime":"2026-03-14T10:00:00"}}`)
	if !ok {
		t.Fatal("expected valid message delta")
	}
	if d.Kind != KindMessage || d.Message == nil || d.Message.ID != 7 {
		t.Fatalf("unexpected delta %+v", d)
	}

	d, ok = parseDelta(`{"kind":"event","researchId":"r1","event":{"id":3,"title":"scope","createTime":"2026-03-14T10:00:01"}}`)
	if !ok || d.Event == nil || d.Event.Title != "scope" {
		t.Fatalf("expected valid event delta, got %+v ok=%v", d, ok)
	}

	for _, bad := range []string{
		"not json",
		`{"kind":"message"}`,
		`{"kind":"event"}`,
		`{"kind":"mystery","message":{"id":1}}`,
	} {
		if _, ok := parseDelta(bad); ok {
			t.Errorf("parseDelta(%q) should be rejected", bad)
		}
	}
}
