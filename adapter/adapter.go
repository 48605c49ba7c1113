// Package adapter fans alert notifications out to heterogeneous channels and
// feeds user commands back into the engine.
package adapter

import (
	"context"
	"sync"
	"time"

	"watchtower/alert"
)

// Name identifies one adapter in the closed set the engine knows about.
type Name string

const (
	NameChat   Name = "chat"
	NamePaging Name = "paging"
	NameMail   Name = "mail"
)

// Adapter is the capability every notification backend exposes. The tier
// passed to Notify and Respond is the global escalation index; each adapter
// translates it onto its own channel list.
//
// Actions returns the adapter's outbound queue of inbound user commands. The
// channel is closed on Close, which is how consumers learn about shutdown.
type Adapter interface {
	Name() Name
	Notify(ctx context.Context, n alert.Notification, tier uint) error
	Respond(ctx context.Context, c alert.Confirmation, tier uint) error
	Actions() <-chan alert.UserAction
	Close() error
}

// actionBuffer is the size of each adapter's outbound action queue.
const actionBuffer = 16

// ttlCache remembers recently seen keys for a fixed duration. The paging and
// mail adapters use it to avoid re-emitting actions for inbox entries they
// keep seeing on every poll.
type ttlCache struct {
	ttl     time.Duration
	mutex   sync.Mutex
	entries map[string]time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
	}
}

// Seen records the key and reports whether it was already present and fresh.
func (c *ttlCache) Seen(key string, now time.Time) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if at, ok := c.entries[key]; ok && now.Sub(at) < c.ttl {
		return true
	}
	for k, at := range c.entries {
		if now.Sub(at) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = now
	return false
}
