package tui

import (
	"testing"
	"time"

	"github.com/ChanlerDev/deep-research/internal/api"
	"github.com/ChanlerDev/deep-research/internal/research"
)

func TestEventLabel(t *testing.T) {
	cases := []struct {
		kind string
		want string
	}{
		{"SCOPE", "[scope] "},
		{"scope", "[scope] "},
		{"SEARCH", "[search] "},
		{"REPORT", "[report] "},
		{"SUPERVISOR", "[plan] "},
		{"", ""},
		{"SYNTHESIS", "[synthesis] "},
	}
	for _, tc := range cases {
		if got := eventLabel(tc.kind); got != tc.want {
			t.Errorf("eventLabel(%q) = %q, want %q", tc.kind, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{12 * time.Second, "12s"},
		{90 * time.Second, "1m30s"},
		{61 * time.Minute, "61m00s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestFormatMetrics(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	m := research.Metrics{
		TotalInputTokens:  1200,
		TotalOutputTokens: 800,
		StartTime:         start,
		CompleteTime:      start.Add(95 * time.Second),
	}
	want := "tokens 1200 in / 800 out  1m35s"
	if got := formatMetrics(m); got != want {
		t.Errorf("formatMetrics = %q, want %q", got, want)
	}

	if got := formatMetrics(research.Metrics{}); got != "" {
		t.Errorf("empty metrics should render nothing, got %q", got)
	}
}

func TestOneLine(t *testing.T) {
	got := oneLine("first line\n  second\r\n\tthird   wide")
	want := "first line second third wide"
	if got != want {
		t.Errorf("oneLine = %q, want %q", got, want)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("short strings pass through, got %q", got)
	}
	got := truncateRunes("die Straßenbahnhaltestelle", 12)
	if len([]rune(got)) != 12 {
		t.Errorf("expected 12 runes, got %d (%q)", len([]rune(got)), got)
	}
}

func TestVisibleSessions(t *testing.T) {
	sessions := []api.StatusResponse{
		{ID: "a", Title: "real topic", Status: api.StatusCompleted},
		{ID: "b", Title: "", Status: api.StatusNew},
		{ID: "c", Title: "claimed early", Status: api.StatusNew},
		{ID: "d", Title: "", Status: api.StatusRunning},
	}
	got := visibleSessions(sessions)
	if len(got) != 3 {
		t.Fatalf("expected 3 visible sessions, got %d", len(got))
	}
	for _, s := range got {
		if s.ID == "b" {
			t.Error("untitled NEW allocation should be hidden")
		}
	}
}

func TestPatchSession(t *testing.T) {
	sessions := []api.StatusResponse{
		{ID: "a", Title: "first", Status: api.StatusRunning},
		{ID: "b", Title: "second", Status: api.StatusNew},
	}

	if !patchSession(sessions, research.SessionChange{ID: "a", Status: api.StatusCompleted}) {
		t.Fatal("expected a match for session a")
	}
	if sessions[0].Status != api.StatusCompleted || sessions[0].Title != "first" {
		t.Errorf("row a not patched in place: %+v", sessions[0])
	}

	if !patchSession(sessions, research.SessionChange{ID: "b", Status: api.StatusRunning, Title: "renamed"}) {
		t.Fatal("expected a match for session b")
	}
	if sessions[1].Title != "renamed" {
		t.Errorf("title patch lost: %+v", sessions[1])
	}

	if patchSession(sessions, research.SessionChange{ID: "zzz", Status: api.StatusRunning}) {
		t.Error("unknown session must report no match so the caller refetches")
	}
}

func TestClampLines(t *testing.T) {
	in := "a\nb\nc\nd\ne"
	got := clampLines(in, 2)
	if got != "…\nd\ne" {
		t.Errorf("expected tail kept, got %q", got)
	}
	if clampLines(in, 10) != in {
		t.Error("short content should pass through")
	}
}
