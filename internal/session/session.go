// Package session persists chats and their conversation logs in
// PostgreSQL. A chat row carries the metadata shown in chat lists; the
// ordered message rows hold the durable conversation log that replay
// projects views from.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrChatNotFound indicates the chat does not exist.
var ErrChatNotFound = errors.New("session: chat not found")

// Chat is one stored conversation.
type Chat struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
