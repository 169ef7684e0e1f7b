package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ChanlerDev/deep-research/internal/api"
	"github.com/ChanlerDev/deep-research/internal/app"
)

// MaxArenaRuns caps how many models race a single topic.
const MaxArenaRuns = 3

const (
	defaultArenaPollInterval = 2500 * time.Millisecond
	defaultArenaPollErrDelay = 4 * time.Second
)

var (
	ErrArenaTopicEmpty = errors.New("arena topic is empty")
	ErrArenaModelCount = errors.New("pick between 1 and 3 models")
	ErrArenaBusy       = errors.New("an arena run is already in progress")
)

// ArenaRun is one model's session inside a comparison. Each run fails or
// finishes on its own; a rejected send on one never blocks the others.
type ArenaRun struct {
	ID     string
	Model  ModelSelection
	Store  *Store
	Err    string
	poller *Poller
}

// ArenaConfig wires an Arena to its collaborators.
type ArenaConfig struct {
	Backend      Backend
	Bus          *Bus
	Logger       *app.Logger
	Archive      ReportArchiver
	OnUpdate     func()
	PollInterval time.Duration
	PollErrDelay time.Duration
}

// Arena races the same topic across up to MaxArenaRuns models. Runs are fed
// by polling rather than push channels: each refresh overwrites the run's
// store from a full snapshot, so a missed cycle self-heals on the next one.
type Arena struct {
	cfg ArenaConfig

	mu        sync.Mutex
	topic     string
	runs      []*ArenaRun
	launching bool
}

func NewArena(cfg ArenaConfig) *Arena {
	if cfg.Bus == nil {
		cfg.Bus = NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = app.NopLogger()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultArenaPollInterval
	}
	if cfg.PollErrDelay <= 0 {
		cfg.PollErrDelay = defaultArenaPollErrDelay
	}
	return &Arena{cfg: cfg}
}

func (a *Arena) notify() {
	if a.cfg.OnUpdate != nil {
		a.cfg.OnUpdate()
	}
}

// Launch allocates one session per model and sends the topic to each,
// independently and concurrently. Validation errors return synchronously;
// everything after happens in the background.
func (a *Arena) Launch(topic string, models []ModelSelection) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ErrArenaTopicEmpty
	}
	if len(models) == 0 || len(models) > MaxArenaRuns {
		return ErrArenaModelCount
	}
	a.mu.Lock()
	// A finished board keeps its results until the user clears it; any
	// existing runs, terminal or not, block a new launch.
	if a.launching || len(a.runs) > 0 {
		a.mu.Unlock()
		return ErrArenaBusy
	}
	a.topic = topic
	a.launching = true
	a.mu.Unlock()
	a.notify()
	go a.launch(topic, models)
	return nil
}

func (a *Arena) launch(topic string, models []ModelSelection) {
	ctx := context.Background()
	created, err := a.cfg.Backend.Create(ctx, len(models))
	if err != nil || len(created.ResearchIDs) < len(models) {
		if err == nil {
			err = &api.APIError{Message: "server allocated too few sessions"}
		}
		a.cfg.Logger.Error("arena allocation failed", map[string]any{"error": err.Error()})
		a.mu.Lock()
		a.launching = false
		a.runs = []*ArenaRun{{Store: NewStore(""), Err: err.Error()}}
		a.mu.Unlock()
		a.notify()
		return
	}

	runs := make([]*ArenaRun, len(models))
	for i, model := range models {
		store := NewStore(created.ResearchIDs[i])
		store.Title = topic
		store.Status = api.StatusRunning
		store.AppendLocal(localUserMessage(store.ID, topic))
		runs[i] = &ArenaRun{ID: store.ID, Model: model, Store: store}
	}
	a.mu.Lock()
	a.launching = false
	a.runs = runs
	a.mu.Unlock()
	a.notify()
	a.cfg.Bus.PublishHistoryChanged()

	var wg sync.WaitGroup
	for _, run := range runs {
		wg.Add(1)
		go func(run *ArenaRun) {
			defer wg.Done()
			a.start(ctx, run, topic)
		}(run)
	}
	wg.Wait()
}

// start submits the topic to one run and begins polling it. A rejected send
// marks only this run failed.
func (a *Arena) start(ctx context.Context, run *ArenaRun, topic string) {
	req := api.SendMessageRequest{
		Content:   topic,
		ModelName: run.Model.ModelName,
		ModelID:   run.Model.ModelID,
		BaseURL:   run.Model.BaseURL,
		APIKey:    run.Model.APIKey,
		Budget:    run.Model.Budget,
	}
	if _, err := a.cfg.Backend.SendMessage(ctx, run.ID, req); err != nil {
		a.cfg.Logger.Warn("arena send failed", map[string]any{
			"researchId": run.ID,
			"model":      run.Model.ModelName,
			"error":      err.Error(),
		})
		a.mu.Lock()
		run.Err = err.Error()
		a.mu.Unlock()
		a.notify()
		return
	}
	a.mu.Lock()
	if a.runLocked(run.ID) != run {
		// Reset raced the send; do not start a poller for a dead run.
		a.mu.Unlock()
		return
	}
	run.poller = StartPoller(a.cfg.PollInterval, a.cfg.PollErrDelay, func(ctx context.Context) (bool, error) {
		return a.refresh(ctx, run)
	})
	a.mu.Unlock()
}

func (a *Arena) runLocked(id string) *ArenaRun {
	for _, r := range a.runs {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// refresh is one poll cycle: fetch the full snapshot and overwrite the run's
// store with it. Returns terminal=true to stop the poller.
func (a *Arena) refresh(ctx context.Context, run *ArenaRun) (bool, error) {
	snap, err := a.cfg.Backend.GetMessages(ctx, run.ID)
	if err != nil {
		a.cfg.Logger.Warn("arena poll failed", map[string]any{
			"researchId": run.ID,
			"error":      err.Error(),
		})
		return false, err
	}
	a.mu.Lock()
	if a.runLocked(run.ID) != run {
		a.mu.Unlock()
		return true, nil
	}
	run.Store.Seed(snap)
	run.Store.Title = a.topic
	terminal := run.Store.Status.Terminal()
	a.mu.Unlock()
	a.notify()
	if terminal {
		a.finish(run)
	}
	return terminal, nil
}

func (a *Arena) finish(run *ArenaRun) {
	a.mu.Lock()
	shouldArchive := a.cfg.Archive != nil && run.Store.Status == api.StatusCompleted
	var title, modelID, report string
	var completed time.Time
	if shouldArchive {
		title, modelID = run.Store.Title, run.Store.ModelID
		if modelID == "" {
			modelID = run.Model.ModelName
		}
		completed = run.Store.Metrics.CompleteTime
		if msg := run.Store.FinalReport(); msg != nil {
			report = msg.Content
		} else {
			shouldArchive = false
		}
	}
	a.mu.Unlock()
	if shouldArchive {
		if err := a.cfg.Archive.SaveReport(run.ID, title, modelID, report, completed); err != nil {
			a.cfg.Logger.Warn("report archive failed", map[string]any{
				"researchId": run.ID,
				"error":      err.Error(),
			})
		}
	}
	a.cfg.Bus.PublishHistoryChanged()
}

// Reset stops every poller and clears the board. Pollers already mid-fetch
// notice on their next cycle that their run is gone and stop themselves.
func (a *Arena) Reset() {
	a.mu.Lock()
	a.resetLocked()
	a.mu.Unlock()
	a.notify()
}

func (a *Arena) resetLocked() {
	for _, run := range a.runs {
		if run.poller != nil {
			run.poller.Close()
			run.poller = nil
		}
	}
	a.runs = nil
	a.topic = ""
}

// ArenaRunView is the render state of one run.
type ArenaRunView struct {
	ID        string
	ModelName string
	Status    api.Status
	Err       string
	Metrics   Metrics
	Timeline  []TimelineItem
	Report    string
}

// ArenaSnapshot is the render state of the whole board.
type ArenaSnapshot struct {
	Topic     string
	Launching bool
	Runs      []ArenaRunView
}

func (a *Arena) Snapshot() ArenaSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := ArenaSnapshot{Topic: a.topic, Launching: a.launching}
	for _, run := range a.runs {
		view := ArenaRunView{
			ID:        run.ID,
			ModelName: run.Model.ModelName,
			Status:    run.Store.Status,
			Err:       run.Err,
			Metrics:   run.Store.Metrics,
			Timeline:  MergeTimeline(run.Store.Messages, run.Store.Events),
		}
		if run.Store.Status == api.StatusCompleted {
			if msg := run.Store.FinalReport(); msg != nil {
				view.Report = msg.Content
			}
		}
		snap.Runs = append(snap.Runs, view)
	}
	return snap
}

// Close stops all pollers.
func (a *Arena) Close() { a.Reset() }
