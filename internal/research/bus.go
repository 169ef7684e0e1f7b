package research

import (
	"sync"

	"github.com/ChanlerDev/deep-research/internal/api"
)

// SessionChange is broadcast when one session's status row should be patched
// in place, without a full history refetch.
type SessionChange struct {
	ID     string
	Status api.Status
	Title  string
}

// Bus is the in-process notification channel between session controllers and
// the session-list view. It replaces ambient global event broadcasting with
// an explicit observer registry scoped to the application.
type Bus struct {
	mu          sync.Mutex
	nextID      int
	historySubs map[int]func()
	statusSubs  map[int]func(SessionChange)
}

func NewBus() *Bus {
	return &Bus{
		historySubs: make(map[int]func()),
		statusSubs:  make(map[int]func(SessionChange)),
	}
}

// SubscribeHistory registers fn to run on every history-changed broadcast.
// The returned function cancels the subscription.
func (b *Bus) SubscribeHistory(fn func()) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.historySubs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.historySubs, id)
		b.mu.Unlock()
	}
}

// SubscribeStatus registers fn for per-session status patches.
func (b *Bus) SubscribeStatus(fn func(SessionChange)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.statusSubs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.statusSubs, id)
		b.mu.Unlock()
	}
}

// PublishHistoryChanged tells the session list to refetch.
func (b *Bus) PublishHistoryChanged() {
	b.mu.Lock()
	subs := make([]func(), 0, len(b.historySubs))
	for _, fn := range b.historySubs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// PublishStatusChanged patches one session row in place.
func (b *Bus) PublishStatusChanged(change SessionChange) {
	b.mu.Lock()
	subs := make([]func(SessionChange), 0, len(b.statusSubs))
	for _, fn := range b.statusSubs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
}
