package conversation

import (
	"sync"

	"github.com/google/uuid"
)

// Log is the append-only message sequence for one conversation.
// Entries are never edited or deleted; append order is the authoritative
// ordering for projection.
//
// Log is safe for concurrent readers. The engine assumes a single writer
// per chat (the active turn's orchestrator); callers must serialize turns
// on the same chat.
type Log struct {
	mu     sync.RWMutex
	chatID uuid.UUID
	msgs   []Message
}

// NewLog creates an empty log for the given chat.
func NewLog(chatID uuid.UUID) *Log {
	return &Log{chatID: chatID}
}

// NewLogFrom creates a log seeded with previously persisted messages.
func NewLogFrom(chatID uuid.UUID, msgs []Message) *Log {
	l := &Log{chatID: chatID, msgs: make([]Message, len(msgs))}
	copy(l.msgs, msgs)
	return l
}

// ChatID returns the owning chat identifier.
func (l *Log) ChatID() uuid.UUID {
	return l.chatID
}

// Append adds messages at the end of the log.
func (l *Log) Append(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msgs...)
}

// Snapshot returns a copy of all messages in append order.
func (l *Log) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}
