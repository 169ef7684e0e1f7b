package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChanlerDev/deep-research/internal/app"
)

const defaultReconnectDelay = time.Second

// errStreamDone stops the read loop after the terminal sentinel; it is the
// one close cause that does not schedule a reconnect.
var errStreamDone = errors.New("stream terminated by server")

// Options configures one logical subscription.
type Options struct {
	// URL of the push-stream endpoint.
	URL string
	// ResearchID is the session to subscribe to. It is captured at open
	// time: every callback carries it, so a stale channel that is still
	// tearing down can never route a delta into the wrong session.
	ResearchID string
	// ClientID identifies this client instance to the server. Generated
	// when empty.
	ClientID string
	// Cursor resumes the stream from a previous position. Empty on a
	// fresh load, where the snapshot already contains history.
	Cursor string
	// Decorate adds auth/identity headers to the stream request.
	Decorate func(*http.Request)
	// ReconnectDelay between attempts. Fixed, not exponential: the server
	// is the authority on terminal state and will eventually emit it.
	ReconnectDelay time.Duration
	HTTP           *http.Client
	Logger         *app.Logger

	OnOpen     func(researchID string)
	OnClose    func(researchID string)
	OnDelta    func(researchID string, d Delta)
	OnTerminal func(researchID string, finalStatus string)
}

// Channel is a single resumable subscription to one session's push stream.
// Open starts it; Close tears it down idempotently and cancels any pending
// reconnect.
type Channel struct {
	opts   Options
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	cursor string
	closed bool
}

// Open starts the subscription and returns immediately; delivery happens on
// the channel's own goroutine.
func Open(opts Options) *Channel {
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.HTTP == nil {
		// No client timeout; a stream connection stays open for hours.
		opts.HTTP = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = app.NopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
		cursor: opts.Cursor,
	}
	go c.run(ctx)
	return c
}

// Close aborts the in-flight connection and discards any scheduled
// reconnect. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	<-c.done
}

// Cursor is the last stream position observed, duplicates included. The
// cursor tracks server stream position, not client-observed novelty.
func (c *Channel) Cursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

func (c *Channel) setCursor(id string) {
	c.mu.Lock()
	c.cursor = id
	c.mu.Unlock()
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	for {
		err := c.connectOnce(ctx)
		if errors.Is(err, errStreamDone) || ctx.Err() != nil {
			return
		}
		if err != nil {
			c.opts.Logger.Warn("stream disconnected, reconnecting", map[string]any{
				"researchId": c.opts.ResearchID,
				"cursor":     c.Cursor(),
				"error":      err.Error(),
			})
		}
		select {
		case <-time.After(c.opts.ReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Channel) connectOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("X-Research-Id", c.opts.ResearchID)
	req.Header.Set("X-Client-Id", c.opts.ClientID)
	if cursor := c.Cursor(); cursor != "" {
		req.Header.Set("Last-Event-ID", cursor)
	}
	if c.opts.Decorate != nil {
		c.opts.Decorate(req)
	}

	resp, err := c.opts.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream open failed (status %d)", resp.StatusCode)
	}

	if c.opts.OnOpen != nil {
		c.opts.OnOpen(c.opts.ResearchID)
	}
	defer func() {
		if c.opts.OnClose != nil {
			c.opts.OnClose(c.opts.ResearchID)
		}
	}()

	return readEvents(resp.Body, func(ev Event) error {
		// The cursor advances on every delivered event, whether or not the
		// delta turns out to be a duplicate.
		if ev.ID != "" {
			c.setCursor(ev.ID)
		}
		if finalStatus, done := isTerminator(ev.Data); done {
			if c.opts.OnTerminal != nil {
				c.opts.OnTerminal(c.opts.ResearchID, finalStatus)
			}
			return errStreamDone
		}
		delta, ok := parseDelta(ev.Data)
		if !ok {
			c.opts.Logger.Warn("dropping malformed stream payload", map[string]any{
				"researchId": c.opts.ResearchID,
				"eventId":    ev.ID,
			})
			return nil
		}
		if c.opts.OnDelta != nil {
			c.opts.OnDelta(c.opts.ResearchID, delta)
		}
		return nil
	})
}
