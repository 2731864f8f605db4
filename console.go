package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalid      = errors.New("invalid request")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
)

// invalidf wraps ErrInvalid with a message for the client.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalid)
}

const timeLayout = time.RFC3339

// Event is broadcast to subscribers after every mutation.
type Event struct {
	Type     string `json:"type"` // e.g. "vm-stop", "manifest-published"
	Resource string `json:"resource"`
	ID       string `json:"id"`
	Content  string `json:"content,omitempty"`
}

// Console is the in-memory catalog behind every admin screen.
type Console struct {
	mu        sync.RWMutex
	vms       []*VM
	groups    []*SecurityGroup
	keys      []*SSHKey
	templates []*CommandTemplate
	gifts     []GiftItem
	events    []GameEvent
	envs      []string
	nextHost  int // last allocated host number in 10.0.0.0/16

	subscribers map[chan Event]struct{}
	subMu       sync.Mutex

	now func() time.Time
	log *zap.Logger
}

// NewConsole returns an empty console.
func NewConsole(log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	return &Console{
		subscribers: make(map[chan Event]struct{}),
		now:         func() time.Time { return time.Now().UTC() },
		log:         log,
	}
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// Subscribe registers a new event subscriber.
func (c *Console) Subscribe() chan Event {
	ch := make(chan Event, 8)
	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (c *Console) Unsubscribe(ch chan Event) {
	c.subMu.Lock()
	delete(c.subscribers, ch)
	c.subMu.Unlock()
	close(ch)
}

// notify never blocks; slow subscribers miss events.
func (c *Console) notify(event Event) {
	c.log.Debug("event", zap.String("type", event.Type), zap.String("id", event.ID))
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Shutdown tells subscribers the server is going away.
func (c *Console) Shutdown() {
	c.notify(Event{Type: "server-shutdown"})
}

// Environments lists the game environments known to the console.
func (c *Console) Environments() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.envs...)
}

func (c *Console) hasEnvLocked(env string) bool {
	for _, e := range c.envs {
		if e == env {
			return true
		}
	}
	return false
}
