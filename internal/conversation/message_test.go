package conversation_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
)

func TestMessageWireShapes(t *testing.T) {
	t.Parallel()

	t.Run("user content is a part array", func(t *testing.T) {
		t.Parallel()

		msg := conversation.NewUserMessage(
			conversation.TextPart("hello"),
			conversation.ImagePart([]byte{0x89, 0x50}),
			conversation.FilePart([]byte("a,b"), "text/csv", "data.csv"),
		)

		data, err := json.Marshal(msg)
		require.NoError(t, err)

		var wire map[string]any
		require.NoError(t, json.Unmarshal(data, &wire))
		assert.Equal(t, "user", wire["role"])

		parts, ok := wire["content"].([]any)
		require.True(t, ok, "user content must be an array")
		require.Len(t, parts, 3)
		first := parts[0].(map[string]any)
		assert.Equal(t, "text", first["type"])
		assert.Equal(t, "hello", first["text"])
	})

	t.Run("plain assistant content is a string", func(t *testing.T) {
		t.Parallel()

		msg := conversation.NewAssistantText("the answer")
		data, err := json.Marshal(msg)
		require.NoError(t, err)

		var wire map[string]any
		require.NoError(t, json.Unmarshal(data, &wire))
		assert.Equal(t, "the answer", wire["content"])
	})

	t.Run("structured assistant content is a part array", func(t *testing.T) {
		t.Parallel()

		msg := conversation.NewAssistantParts(conversation.AssistantPart{
			Kind:     conversation.AssistantToolCall,
			ToolName: "searchWeb",
			CallID:   "call-1",
			Args:     json.RawMessage(`{"query":"latest AI news"}`),
		})
		data, err := json.Marshal(msg)
		require.NoError(t, err)

		var wire map[string]any
		require.NoError(t, json.Unmarshal(data, &wire))
		parts := wire["content"].([]any)
		part := parts[0].(map[string]any)
		assert.Equal(t, "tool-call", part["type"])
		assert.Equal(t, "searchWeb", part["toolName"])
	})
}

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	msgs := []conversation.Message{
		conversation.NewUserMessage(conversation.TextPart("hi")),
		conversation.NewAssistantText("hello there"),
		conversation.NewAssistantParts(
			conversation.AssistantPart{
				Kind:     conversation.AssistantToolCall,
				ToolName: "wikipediaSearch",
				CallID:   "c1",
				Args:     json.RawMessage(`{"query":"go"}`),
			},
		),
		conversation.NewToolMessage(conversation.ToolResult{
			ToolName: "wikipediaSearch",
			CallID:   "c1",
			Result:   json.RawMessage(`{"content":"Go is a language","query":"go"}`),
		}),
		conversation.NewAssistantParts(conversation.AssistantPart{
			Kind:     conversation.AssistantText,
			ToolName: "wikipediaSearch",
			Text:     "Go is a language designed at Google.",
		}),
		conversation.NewSystemMessage("internal note"),
	}

	for _, original := range msgs {
		data, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded conversation.Message
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, original, decoded, "round trip must preserve %s message", original.Role)
	}
}

func TestUnknownKindsSurviveRoundTrip(t *testing.T) {
	t.Parallel()

	raw := `{"id":"m1","role":"user","content":[{"type":"hologram","text":"??"},{"type":"text","text":"real"}]}`

	var msg conversation.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	require.Len(t, msg.Content, 2)
	assert.Equal(t, conversation.PartKind("hologram"), msg.Content[0].Kind)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var again conversation.Message
	require.NoError(t, json.Unmarshal(data, &again))
	assert.Equal(t, msg, again)
}

func TestTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msgs []conversation.Message
		want string
	}{
		{
			name: "first user text part",
			msgs: []conversation.Message{
				conversation.NewSystemMessage("prelude"),
				conversation.NewUserMessage(conversation.TextPart("what is Go?")),
			},
			want: "what is Go?",
		},
		{
			name: "empty log",
			msgs: nil,
			want: conversation.DefaultTitle,
		},
		{
			name: "user message with no text part",
			msgs: []conversation.Message{
				conversation.NewUserMessage(conversation.ImagePart([]byte{1})),
			},
			want: conversation.DefaultTitle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, conversation.Title(tt.msgs))
		})
	}

	t.Run("truncates to 100 runes", func(t *testing.T) {
		t.Parallel()

		long := make([]rune, 150)
		for i := range long {
			long[i] = 'x'
		}
		title := conversation.Title([]conversation.Message{
			conversation.NewUserMessage(conversation.TextPart(string(long))),
		})
		assert.Len(t, []rune(title), 100)
	})
}
