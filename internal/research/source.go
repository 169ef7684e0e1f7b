package research

import (
	"context"
	"sync"
	"time"

	"github.com/ChanlerDev/deep-research/internal/api"
)

// Backend is the slice of the REST surface the controllers depend on.
// *api.Client satisfies it.
type Backend interface {
	Create(ctx context.Context, n int) (api.CreateResponse, error)
	GetStatus(ctx context.Context, researchID string) (api.StatusResponse, error)
	GetMessages(ctx context.Context, researchID string) (api.MessagesResponse, error)
	SendMessage(ctx context.Context, researchID string, req api.SendMessageRequest) (api.SendMessageResponse, error)
	GetHistory(ctx context.Context) ([]api.StatusResponse, error)
}

// UpdateSource is a running feed of new information for one session. The
// single-session controller uses the push stream; arena runs use a Poller.
// Either way the store never learns which transport fed it.
type UpdateSource interface {
	// Close stops delivery and releases timers/connections. Idempotent.
	Close()
}

// Poller re-fetches a session snapshot on a fixed interval. The poll
// callback reports whether the session reached a terminal state, which stops
// the poller; poll errors reschedule with errDelay instead of stopping, so a
// transient failure does not strand a run.
type Poller struct {
	interval time.Duration
	errDelay time.Duration
	poll     func(ctx context.Context) (terminal bool, err error)

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// StartPoller begins polling immediately and then on the given cadence.
func StartPoller(interval, errDelay time.Duration, poll func(ctx context.Context) (bool, error)) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		interval: interval,
		errDelay: errDelay,
		poll:     poll,
		ctx:      ctx,
		cancel:   cancel,
	}
	p.schedule(0)
	return p
}

func (p *Poller) schedule(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.timer = time.AfterFunc(d, p.tick)
}

func (p *Poller) tick() {
	terminal, err := p.poll(p.ctx)
	if p.ctx.Err() != nil || terminal {
		return
	}
	if err != nil {
		p.schedule(p.errDelay)
		return
	}
	p.schedule(p.interval)
}

// Close cancels the in-flight poll and any scheduled one.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	timer := p.timer
	p.mu.Unlock()
	p.cancel()
	if timer != nil {
		timer.Stop()
	}
}
