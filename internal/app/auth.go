package app

import "sync"

// Credentials holds the bearer token and legacy user id. Reads vastly
// outnumber writes (the token changes only on login/logout), so consumers
// read through Token() and register for change notification instead of
// polling.
type Credentials struct {
	mu        sync.RWMutex
	token     string
	userID    string
	listeners []func()
}

func NewCredentials(token, userID string) *Credentials {
	if userID == "" {
		userID = "1"
	}
	return &Credentials{token: token, userID: userID}
}

func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Credentials) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Credentials) Authenticated() bool {
	return c.Token() != ""
}

// SetToken replaces the token and notifies listeners.
func (c *Credentials) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	listeners := make([]func(), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// OnChange registers a callback invoked after every token change.
func (c *Credentials) OnChange(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}
