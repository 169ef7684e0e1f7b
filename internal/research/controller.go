package research

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChanlerDev/deep-research/internal/api"
	"github.com/ChanlerDev/deep-research/internal/app"
	"github.com/ChanlerDev/deep-research/internal/stream"
)

// View is the coarse display state of the session pane.
type View int

const (
	// ViewChat shows the transcript and, when the status accepts input,
	// the composer. A fresh draft session with no id yet is also ViewChat.
	ViewChat View = iota
	// ViewLoading covers the window between navigation and snapshot
	// arrival.
	ViewLoading
	// ViewLoadFailed means the snapshot itself could not be fetched. It is
	// deliberately distinct from a run whose status is FAILED; that one
	// still renders its transcript under ViewChat.
	ViewLoadFailed
)

// ModelSelection is the model binding attached to a session's first message.
// The zero value means "platform default".
type ModelSelection struct {
	ModelName string
	ModelID   string
	BaseURL   string
	APIKey    string
	Budget    api.Budget
}

// ReportArchiver persists completed reports locally. Satisfied by
// *archive.Archive.
type ReportArchiver interface {
	SaveReport(researchID, title, modelID, report string, completedAt time.Time) error
}

// ControllerConfig wires a Controller to its collaborators.
type ControllerConfig struct {
	Backend   Backend
	StreamURL string
	// Decorate adds auth headers to stream requests.
	Decorate func(*http.Request)
	Bus      *Bus
	Logger   *app.Logger
	Archive  ReportArchiver
	// OnUpdate fires after any state change, on the goroutine that caused
	// it. The UI uses it to schedule a redraw.
	OnUpdate func()
	// ReconnectDelay for the push channel. Zero means the channel default.
	ReconnectDelay time.Duration
	StreamHTTP     *http.Client
}

// Controller owns the visible single-session view: it loads snapshots,
// maintains exactly one push channel for the session on screen, routes deltas
// into the store, and submits user messages with optimistic echo.
type Controller struct {
	cfg      ControllerConfig
	clientID string

	mu        sync.Mutex
	store     *Store
	view      View
	errMsg    string
	draft     string
	connected bool
	sending   bool
	// loadSeq invalidates in-flight loads and channel callbacks from a
	// session the user has already navigated away from.
	loadSeq uint64
	source  UpdateSource
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Bus == nil {
		cfg.Bus = NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = app.NopLogger()
	}
	return &Controller{
		cfg:      cfg,
		clientID: uuid.NewString(),
		store:    NewStore(""),
		view:     ViewChat,
	}
}

// Bus exposes the change bus so sibling views can subscribe.
func (c *Controller) Bus() *Bus { return c.cfg.Bus }

func (c *Controller) notify() {
	if c.cfg.OnUpdate != nil {
		c.cfg.OnUpdate()
	}
}

// currentLocked reports whether seq still names the session on screen.
func (c *Controller) currentLocked(seq uint64) bool { return seq == c.loadSeq }

func (c *Controller) closeSourceLocked() {
	if c.source != nil {
		src := c.source
		c.source = nil
		// Close blocks until the channel goroutine exits; never hold the
		// lock across it, its callbacks take the same lock.
		go src.Close()
	}
	c.connected = false
}

// NewSession returns to an empty draft: no id, no transcript, composer ready.
func (c *Controller) NewSession() {
	c.mu.Lock()
	c.loadSeq++
	c.closeSourceLocked()
	c.store = NewStore("")
	c.view = ViewChat
	c.errMsg = ""
	c.draft = ""
	c.sending = false
	c.mu.Unlock()
	c.notify()
}

// Load navigates to an existing session. A later Load supersedes an earlier
// one: whichever snapshot belongs to a stale sequence is dropped on arrival.
func (c *Controller) Load(researchID string) {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.closeSourceLocked()
	c.store = NewStore(researchID)
	c.view = ViewLoading
	c.errMsg = ""
	c.sending = false
	c.mu.Unlock()
	c.notify()
	go c.load(seq, researchID)
}

func (c *Controller) load(seq uint64, researchID string) {
	ctx := context.Background()
	status, err := c.cfg.Backend.GetStatus(ctx, researchID)
	if err != nil {
		c.failLoad(seq, researchID, err)
		return
	}

	if status.Status == api.StatusNew {
		// Unstarted session: nothing to fetch, nothing to stream.
		c.mu.Lock()
		if !c.currentLocked(seq) {
			c.mu.Unlock()
			return
		}
		c.store.Title = status.Title
		c.store.MergeStatus(status)
		c.view = ViewChat
		c.mu.Unlock()
		c.notify()
		return
	}

	snap, err := c.cfg.Backend.GetMessages(ctx, researchID)
	if err != nil {
		c.failLoad(seq, researchID, err)
		return
	}

	c.mu.Lock()
	if !c.currentLocked(seq) {
		c.mu.Unlock()
		return
	}
	c.store.Seed(snap)
	c.store.MergeStatus(status)
	c.view = ViewChat
	active := c.store.Status.Active()
	c.mu.Unlock()
	if active {
		c.openChannel(seq, researchID, "")
	}
	c.notify()
}

func (c *Controller) failLoad(seq uint64, researchID string, err error) {
	c.cfg.Logger.Error("session load failed", map[string]any{
		"researchId": researchID,
		"error":      err.Error(),
	})
	c.mu.Lock()
	if !c.currentLocked(seq) {
		c.mu.Unlock()
		return
	}
	c.view = ViewLoadFailed
	c.errMsg = err.Error()
	c.mu.Unlock()
	c.notify()
}

// openChannel starts the push stream for researchID unless one is already
// running or the user has navigated away.
func (c *Controller) openChannel(seq uint64, researchID, cursor string) {
	c.mu.Lock()
	if !c.currentLocked(seq) || c.source != nil {
		c.mu.Unlock()
		return
	}
	ch := stream.Open(stream.Options{
		URL:            c.cfg.StreamURL,
		ResearchID:     researchID,
		ClientID:       c.clientID,
		Cursor:         cursor,
		Decorate:       c.cfg.Decorate,
		ReconnectDelay: c.cfg.ReconnectDelay,
		HTTP:           c.cfg.StreamHTTP,
		Logger:         c.cfg.Logger,
		OnOpen:         func(id string) { c.setConnected(id, true) },
		OnClose:        func(id string) { c.setConnected(id, false) },
		OnDelta:        c.handleDelta,
		OnTerminal:     c.handleTerminal,
	})
	c.source = ch
	c.mu.Unlock()
}

func (c *Controller) setConnected(researchID string, up bool) {
	c.mu.Lock()
	if c.store.ID != researchID {
		c.mu.Unlock()
		return
	}
	c.connected = up
	c.mu.Unlock()
	c.notify()
}

// handleDelta applies one pushed item. The researchID was captured when the
// channel opened, so deltas from a channel that outlived its session are
// dropped here instead of landing in the wrong store.
func (c *Controller) handleDelta(researchID string, d stream.Delta) {
	c.mu.Lock()
	if c.store.ID != researchID {
		c.mu.Unlock()
		return
	}
	var fresh bool
	switch {
	case d.Kind == stream.KindMessage && d.Message != nil:
		fresh = c.store.ApplyMessage(*d.Message)
	case d.Kind == stream.KindEvent && d.Event != nil:
		fresh = c.store.ApplyEvent(*d.Event)
	}
	c.mu.Unlock()
	if fresh {
		if d.Kind == stream.KindMessage {
			// A new message usually means the status moved too.
			go c.resyncStatus(researchID)
		}
		c.notify()
	}
}

// resyncStatus refreshes the lightweight status snapshot and publishes the
// change so the history list tracks the live session.
func (c *Controller) resyncStatus(researchID string) {
	status, err := c.cfg.Backend.GetStatus(context.Background(), researchID)
	if err != nil {
		c.cfg.Logger.Warn("status resync failed", map[string]any{
			"researchId": researchID,
			"error":      err.Error(),
		})
		return
	}
	c.mu.Lock()
	if c.store.ID != researchID || !c.store.MergeStatus(status) {
		c.mu.Unlock()
		return
	}
	change := SessionChange{ID: researchID, Status: c.store.Status, Title: c.store.Title}
	c.mu.Unlock()
	c.cfg.Bus.PublishStatusChanged(change)
	c.notify()
}

func (c *Controller) handleTerminal(researchID, finalStatus string) {
	c.mu.Lock()
	if c.store.ID != researchID {
		c.mu.Unlock()
		return
	}
	if finalStatus != "" {
		c.store.Status = api.Status(strings.ToUpper(finalStatus))
	}
	c.source = nil
	c.connected = false
	c.mu.Unlock()
	c.notify()
	go c.finalize(researchID)
}

// finalize runs once per terminal stream: it pulls the definitive snapshot,
// archives a completed report, and tells the history list to refresh.
func (c *Controller) finalize(researchID string) {
	ctx := context.Background()
	snap, err := c.cfg.Backend.GetMessages(ctx, researchID)
	if err == nil {
		c.mu.Lock()
		if c.store.ID == researchID {
			c.store.Seed(snap)
		}
		c.mu.Unlock()
	}
	if status, err := c.cfg.Backend.GetStatus(ctx, researchID); err == nil {
		c.mu.Lock()
		if c.store.ID == researchID {
			c.store.MergeStatus(status)
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	store := c.store
	shouldArchive := c.cfg.Archive != nil &&
		store.ID == researchID &&
		store.Status == api.StatusCompleted
	var title, modelID, report string
	var completed time.Time
	if shouldArchive {
		title, modelID = store.Title, store.ModelID
		completed = store.Metrics.CompleteTime
		if msg := store.FinalReport(); msg != nil {
			report = msg.Content
		} else {
			shouldArchive = false
		}
	}
	c.mu.Unlock()

	if shouldArchive {
		if err := c.cfg.Archive.SaveReport(researchID, title, modelID, report, completed); err != nil {
			c.cfg.Logger.Warn("report archive failed", map[string]any{
				"researchId": researchID,
				"error":      err.Error(),
			})
		}
	}
	c.cfg.Bus.PublishHistoryChanged()
	c.notify()
}

// Send submits user input. On a session with no id yet it first acquires one
// (reusing an unclaimed NEW session from history before creating a fresh
// one), binds the model selection, and opens the push channel. The message
// appears in the transcript immediately; a rejected send removes it and
// restores the text as the draft.
func (c *Controller) Send(content string, sel ModelSelection) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	c.mu.Lock()
	if !c.canSendLocked() {
		c.mu.Unlock()
		return
	}
	c.sending = true
	seq := c.loadSeq
	id := c.store.ID
	c.errMsg = ""
	c.draft = ""
	if id != "" {
		first := len(c.store.Messages) == 0
		c.store.AppendLocal(localUserMessage(id, content))
		c.store.Status = api.StatusRunning
		c.mu.Unlock()
		c.notify()
		go c.send(seq, id, content, first, sel)
		return
	}
	c.view = ViewLoading
	c.mu.Unlock()
	c.notify()
	go c.startSession(seq, content, sel)
}

// startSession resolves an id for a draft session and then sends.
func (c *Controller) startSession(seq uint64, content string, sel ModelSelection) {
	id, err := c.acquireID(context.Background())
	if err != nil {
		c.mu.Lock()
		if !c.currentLocked(seq) {
			c.mu.Unlock()
			return
		}
		c.sending = false
		c.errMsg = err.Error()
		c.draft = content
		c.view = ViewChat
		c.mu.Unlock()
		c.notify()
		return
	}
	c.mu.Lock()
	if !c.currentLocked(seq) {
		c.mu.Unlock()
		return
	}
	c.store = NewStore(id)
	c.store.AppendLocal(localUserMessage(id, content))
	c.store.Status = api.StatusRunning
	c.view = ViewChat
	c.mu.Unlock()
	c.notify()
	c.cfg.Bus.PublishHistoryChanged()
	c.send(seq, id, content, true, sel)
}

// acquireID reuses a leftover NEW session when one exists; otherwise it asks
// the server to allocate one.
func (c *Controller) acquireID(ctx context.Context) (string, error) {
	if history, err := c.cfg.Backend.GetHistory(ctx); err == nil {
		for _, h := range history {
			if h.Status == api.StatusNew {
				return h.ID, nil
			}
		}
	}
	resp, err := c.cfg.Backend.Create(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(resp.ResearchIDs) == 0 {
		return "", &api.APIError{Message: "server allocated no session"}
	}
	return resp.ResearchIDs[0], nil
}

func (c *Controller) send(seq uint64, researchID, content string, first bool, sel ModelSelection) {
	c.openChannel(seq, researchID, "")

	req := api.SendMessageRequest{Content: content}
	if first {
		req.ModelName = sel.ModelName
		req.ModelID = sel.ModelID
		req.BaseURL = sel.BaseURL
		req.APIKey = sel.APIKey
		req.Budget = sel.Budget
	}
	_, err := c.cfg.Backend.SendMessage(context.Background(), researchID, req)

	c.mu.Lock()
	if !c.currentLocked(seq) || c.store.ID != researchID {
		c.mu.Unlock()
		return
	}
	c.sending = false
	if err != nil {
		c.dropLastLocalLocked()
		c.errMsg = err.Error()
		c.draft = content
		if len(c.store.Messages) == 0 {
			c.store.Status = api.StatusNew
		}
		c.closeSourceLocked()
		c.mu.Unlock()
		c.notify()
		go c.resyncStatus(researchID)
		return
	}
	c.mu.Unlock()
	c.notify()
	go c.resyncStatus(researchID)
}

// dropLastLocalLocked removes the optimistic echo of a send that the server
// rejected. Only the trailing local user message is eligible.
func (c *Controller) dropLastLocalLocked() {
	n := len(c.store.Messages)
	if n == 0 {
		return
	}
	last := c.store.Messages[n-1]
	if last.Role == "user" && last.ID >= localIDBase {
		c.store.Messages = c.store.Messages[:n-1]
	}
}

// localIDBase separates optimistic local ids from server-assigned ones.
// Server ids are small auto-increments; nanosecond timestamps never collide
// with them.
const localIDBase = int64(1) << 40

func localUserMessage(researchID, content string) api.ChatMessage {
	now := time.Now()
	return api.ChatMessage{
		ID:         now.UnixNano(),
		ResearchID: researchID,
		Role:       "user",
		Content:    content,
		CreateTime: api.Time{Time: now},
	}
}

// Snapshot is an immutable view of the controller for rendering.
type Snapshot struct {
	View      View
	ID        string
	Title     string
	Status    api.Status
	ModelID   string
	Err       string
	Draft     string
	Connected bool
	Sending   bool
	Metrics   Metrics
	Timeline  []TimelineItem
	Report    string
	CanSend   bool
}

// Snapshot assembles the render state, merging the timeline on demand.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		View:      c.view,
		ID:        c.store.ID,
		Title:     c.store.Title,
		Status:    c.store.Status,
		ModelID:   c.store.ModelID,
		Err:       c.errMsg,
		Draft:     c.draft,
		Connected: c.connected,
		Sending:   c.sending,
		Metrics:   c.store.Metrics,
	}
	snap.Timeline = MergeTimeline(c.store.Messages, c.store.Events)
	if c.store.Status == api.StatusCompleted {
		if msg := c.store.FinalReport(); msg != nil {
			snap.Report = msg.Content
		}
	}
	snap.CanSend = c.canSendLocked()
	return snap
}

// canSendLocked mirrors the composer availability rule: input is accepted
// only on a blank draft session or one whose status wants more from the
// user, and never while a send or load is in flight.
func (c *Controller) canSendLocked() bool {
	blank := c.store.ID == "" && len(c.store.Messages) == 0
	return !c.sending && c.view == ViewChat &&
		(blank || c.store.Status.AcceptsInput())
}

// TakeDraft hands back a restored failed-send draft exactly once.
func (c *Controller) TakeDraft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	c.draft = ""
	return d
}

// Close tears down the push channel. The controller stays usable; the next
// Load opens a fresh one.
func (c *Controller) Close() {
	c.mu.Lock()
	c.loadSeq++
	src := c.source
	c.source = nil
	c.connected = false
	c.mu.Unlock()
	if src != nil {
		src.Close()
	}
}
