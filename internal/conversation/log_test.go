package conversation_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
)

func TestLogAppendOnly(t *testing.T) {
	t.Parallel()

	l := conversation.NewLog(uuid.New())

	// Every snapshot must be a strict prefix of every later snapshot.
	var prev []conversation.Message
	for i := range 20 {
		l.Append(conversation.NewUserMessage(conversation.TextPart(fmt.Sprintf("msg %d", i))))

		snap := l.Snapshot()
		require.Len(t, snap, i+1)
		for j, m := range prev {
			assert.Equal(t, m, snap[j], "earlier snapshot element changed at %d", j)
		}
		prev = snap
	}
}

func TestLogSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	l := conversation.NewLog(uuid.New())
	l.Append(conversation.NewAssistantText("one"))

	snap := l.Snapshot()
	snap[0].Text = "mutated"

	assert.Equal(t, "one", l.Snapshot()[0].Text, "mutating a snapshot must not affect the log")
}

func TestNewLogFrom(t *testing.T) {
	t.Parallel()

	chatID := uuid.New()
	seed := []conversation.Message{
		conversation.NewUserMessage(conversation.TextPart("hi")),
		conversation.NewAssistantText("hello"),
	}

	l := conversation.NewLogFrom(chatID, seed)
	assert.Equal(t, chatID, l.ChatID())
	assert.Equal(t, seed, l.Snapshot())

	// The seed slice is copied, not aliased.
	seed[0].Text = "mutated"
	assert.NotEqual(t, seed[0], l.Snapshot()[0])
}
