package chat

import (
	"sync"

	"github.com/google/uuid"
)

// chatLock is one chat's turn mutex plus the count of holders and waiters.
type chatLock struct {
	mu   sync.Mutex
	refs int
}

// chatLocks serializes turns per chat. An entry lives only while some turn
// holds or waits for it, so the map stays bounded by in-flight turns.
type chatLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*chatLock
}

// lock acquires the chat's mutex and returns its unlock function. The last
// releaser evicts the entry.
func (c *chatLocks) lock(chatID uuid.UUID) func() {
	c.mu.Lock()
	if c.locks == nil {
		c.locks = make(map[uuid.UUID]*chatLock)
	}
	l, ok := c.locks[chatID]
	if !ok {
		l = &chatLock{}
		c.locks[chatID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, chatID)
		}
		c.mu.Unlock()
	}
}
