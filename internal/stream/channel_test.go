package stream

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordedConn struct {
	lastEventID string
	researchID  string
	clientID    string
	auth        string
}

// streamServer scripts one handler func per connection attempt.
type streamServer struct {
	mu    sync.Mutex
	conns []recordedConn
	steps []func(w http.ResponseWriter)
}

func (s *streamServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.conns)
	s.conns = append(s.conns, recordedConn{
		lastEventID: r.Header.Get("Last-Event-ID"),
		researchID:  r.Header.Get("X-Research-Id"),
		clientID:    r.Header.Get("X-Client-Id"),
		auth:        r.Header.Get("Authorization"),
	})
	var step func(w http.ResponseWriter)
	if n < len(s.steps) {
		step = s.steps[n]
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	if step != nil {
		step(w)
	}
}

func (s *streamServer) connections() []recordedConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedConn(nil), s.conns...)
}

func writeDelta(w http.ResponseWriter, id int, content string) {
	fmt.Fprintf(w, "id: %d\nevent: message\ndata: {\"kind\":\"message\",\"researchId\":\"r1\",\"message\":{\"id\":%d,\"role\":\"assistant\",\"content\":%q,\"createTime\":\"2026-03-14T10:00:0%d\"}}\n\n",
		id, id, content, id)
	w.(http.Flusher).Flush()
}

func writeTerminator(w http.ResponseWriter, status string) {
	fmt.Fprintf(w, "data: [DONE] %s\n\n", status)
	w.(http.Flusher).Flush()
}

// TestChannelResumeAfterDisconnect drops the first connection mid-stream and
// expects the reconnect to present the last seen id as its cursor. The
// server replays one already-delivered delta; combined with the terminator
// the channel must surface every id and then stop for good.
func TestChannelResumeAfterDisconnect(t *testing.T) {
	srv := &streamServer{
		steps: []func(http.ResponseWriter){
			func(w http.ResponseWriter) {
				writeDelta(w, 1, "first")
				writeDelta(w, 2, "second")
				// Connection drops here without a terminator.
			},
			func(w http.ResponseWriter) {
				writeDelta(w, 2, "second") // replayed
				writeDelta(w, 3, "third")
				writeTerminator(w, "COMPLETED")
			},
		},
	}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	var mu sync.Mutex
	var contents []string
	var finalStatus string
	done := make(chan struct{})

	ch := Open(Options{
		URL:            ts.URL,
		ResearchID:     "r1",
		ClientID:       "client-1",
		ReconnectDelay: 10 * time.Millisecond,
		Decorate: func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer tok")
		},
		OnDelta: func(_ string, d Delta) {
			mu.Lock()
			contents = append(contents, d.Message.Content)
			mu.Unlock()
		},
		OnTerminal: func(_ string, status string) {
			finalStatus = status
			close(done)
		},
	})
	defer ch.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("terminator never arrived")
	}

	if finalStatus != "COMPLETED" {
		t.Errorf("expected final status COMPLETED, got %q", finalStatus)
	}
	mu.Lock()
	got := append([]string(nil), contents...)
	mu.Unlock()
	// The channel itself reports stream position, not novelty: the replayed
	// delta is delivered again and deduplication happens in the store.
	want := []string{"first", "second", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("expected deltas %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delta %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if cursor := ch.Cursor(); cursor != "3" {
		t.Errorf("expected cursor 3, got %q", cursor)
	}

	// No reconnect after the terminator.
	time.Sleep(50 * time.Millisecond)
	conns := srv.connections()
	if len(conns) != 2 {
		t.Fatalf("expected exactly 2 connections, got %d", len(conns))
	}
	if conns[0].lastEventID != "" {
		t.Errorf("fresh open must not send a cursor, got %q", conns[0].lastEventID)
	}
	if conns[1].lastEventID != "2" {
		t.Errorf("reconnect should resume from id 2, got %q", conns[1].lastEventID)
	}
	for i, c := range conns {
		if c.researchID != "r1" || c.clientID != "client-1" || c.auth != "Bearer tok" {
			t.Errorf("connection %d missing identity headers: %+v", i, c)
		}
	}
}

// TestChannelReconnectsOnServerError keeps retrying through a failing server
// until a stream finally opens.
func TestChannelReconnectsOnServerError(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})
	handler := func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeTerminator(w, "COMPLETED")
	}
	ts := httptest.NewServer(http.HandlerFunc(handler))
	defer ts.Close()

	ch := Open(Options{
		URL:            ts.URL,
		ResearchID:     "r1",
		ReconnectDelay: 5 * time.Millisecond,
		OnTerminal:     func(string, string) { close(done) },
	})
	defer ch.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("channel never got through")
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

// TestChannelCloseIsIdempotent closes a channel stuck in its reconnect wait,
// twice.
func TestChannelCloseIsIdempotent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	ch := Open(Options{
		URL:            ts.URL,
		ResearchID:     "r1",
		ReconnectDelay: time.Hour,
	})
	time.Sleep(20 * time.Millisecond)

	finished := make(chan struct{})
	go func() {
		ch.Close()
		ch.Close()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

// TestChannelOpenCloseCallbacks reports connection state transitions.
func TestChannelOpenCloseCallbacks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeTerminator(w, "COMPLETED")
	}))
	defer ts.Close()

	var mu sync.Mutex
	var transitions []string
	done := make(chan struct{})
	ch := Open(Options{
		URL:        ts.URL,
		ResearchID: "r1",
		OnOpen: func(id string) {
			mu.Lock()
			transitions = append(transitions, "open:"+id)
			mu.Unlock()
		},
		OnClose: func(id string) {
			mu.Lock()
			transitions = append(transitions, "close:"+id)
			mu.Unlock()
		},
		OnTerminal: func(string, string) { close(done) },
	})
	defer ch.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never terminated")
	}
	ch.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 || transitions[0] != "open:r1" || transitions[1] != "close:r1" {
		t.Fatalf("expected open then close, got %v", transitions)
	}
}
