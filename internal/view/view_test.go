package view_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
	"github.com/amacdonaldai/gen-bionic/internal/view"
)

func searchTurnLog() []conversation.Message {
	return []conversation.Message{
		conversation.NewUserMessage(conversation.TextPart("latest AI news")),
		conversation.NewAssistantParts(conversation.AssistantPart{
			Kind:     conversation.AssistantToolCall,
			ToolName: "searchWeb",
			CallID:   "c1",
			Args:     json.RawMessage(`{"query":"latest AI news"}`),
		}),
		conversation.NewToolMessage(conversation.ToolResult{
			ToolName: "searchWeb",
			CallID:   "c1",
			Result:   json.RawMessage(`{"text":"results","sources":[]}`),
		}),
		conversation.NewAssistantParts(conversation.AssistantPart{
			Kind:     conversation.AssistantText,
			ToolName: "searchWeb",
			Text:     "Here is what I found.",
			Meta:     "latest AI news",
		}),
	}
}

func TestProjectSearchTurn(t *testing.T) {
	t.Parallel()

	nodes := view.Project(searchTurnLog())

	// user, tool-result (raw payload), tool-result (narration)
	require.Len(t, nodes, 3)

	assert.Equal(t, view.KindUser, nodes[0].Kind)
	require.Len(t, nodes[0].Fragments, 1)
	assert.Equal(t, "latest AI news", nodes[0].Fragments[0].Text)

	assert.Equal(t, view.KindToolResult, nodes[1].Kind)
	assert.Equal(t, "searchWeb", nodes[1].ToolName)
	assert.JSONEq(t, `{"text":"results","sources":[]}`, string(nodes[1].Payload))

	assert.Equal(t, view.KindToolResult, nodes[2].Kind)
	assert.Equal(t, "Here is what I found.", nodes[2].Text)
	assert.Equal(t, "latest AI news", nodes[2].Meta)
}

func TestProjectExcludesSystemMessages(t *testing.T) {
	t.Parallel()

	nodes := view.Project([]conversation.Message{
		conversation.NewSystemMessage("hidden"),
		conversation.NewAssistantText("visible"),
	})

	require.Len(t, nodes, 1)
	assert.Equal(t, view.KindPlainText, nodes[0].Kind)
	assert.Equal(t, "visible", nodes[0].Text)
}

func TestProjectUnknownVariantSafety(t *testing.T) {
	t.Parallel()

	t.Run("unknown tool name is dropped", func(t *testing.T) {
		t.Parallel()

		nodes := view.Project([]conversation.Message{
			conversation.NewToolMessage(conversation.ToolResult{
				ToolName: "quantumOracle",
				CallID:   "c9",
				Result:   json.RawMessage(`{"answer":42}`),
			}),
			conversation.NewAssistantParts(conversation.AssistantPart{
				Kind:     conversation.AssistantText,
				ToolName: "quantumOracle",
				Text:     "narration for unknown tool",
			}),
		})
		assert.Empty(t, nodes)
	})

	t.Run("unknown content part kind is skipped", func(t *testing.T) {
		t.Parallel()

		msg := conversation.NewUserMessage(
			conversation.ContentPart{Kind: "hologram", Text: "??"},
			conversation.TextPart("real"),
		)
		nodes := view.Project([]conversation.Message{msg})

		require.Len(t, nodes, 1)
		require.Len(t, nodes[0].Fragments, 1)
		assert.Equal(t, "real", nodes[0].Fragments[0].Text)
	})

	t.Run("unknown assistant part kind is skipped", func(t *testing.T) {
		t.Parallel()

		msg := conversation.NewAssistantParts(conversation.AssistantPart{
			Kind: "reasoning",
			Text: "internal",
		})
		assert.Empty(t, view.Project([]conversation.Message{msg}))
	})
}

func TestProjectUserAttachments(t *testing.T) {
	t.Parallel()

	msg := conversation.NewUserMessage(
		conversation.TextPart("see attachments"),
		conversation.ImagePart([]byte{0x1}),
		conversation.FilePart([]byte("x"), "application/pdf", "paper.pdf"),
	)
	nodes := view.Project([]conversation.Message{msg})

	require.Len(t, nodes, 1)
	frags := nodes[0].Fragments
	require.Len(t, frags, 3)
	assert.Equal(t, view.FragmentParagraph, frags[0].Kind)
	assert.Equal(t, view.FragmentImage, frags[1].Kind)
	assert.Equal(t, view.FragmentFile, frags[2].Kind)
	assert.Equal(t, "paper.pdf", frags[2].Name)
	// File bytes are not part of the view, only the link metadata.
	assert.Empty(t, frags[2].Image)
}

func TestReplayInvariant(t *testing.T) {
	t.Parallel()

	live := searchTurnLog()

	// Simulate reload: full JSON round trip through the persistence shape.
	data, err := json.Marshal(live)
	require.NoError(t, err)
	var reloaded []conversation.Message
	require.NoError(t, json.Unmarshal(data, &reloaded))

	assert.Equal(t, view.Project(live), view.Project(reloaded))
}

func TestProjectDeterminism(t *testing.T) {
	t.Parallel()

	msgs := searchTurnLog()

	first, err := json.Marshal(view.Project(msgs))
	require.NoError(t, err)
	second, err := json.Marshal(view.Project(msgs))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second), "projection must be byte-identical across calls")
}

func TestToolViewDispatch(t *testing.T) {
	t.Parallel()

	n, ok := view.ToolView("id1", "generateSlides", "deck summary", "", json.RawMessage(`{"topic":"go"}`))
	require.True(t, ok)
	assert.Equal(t, view.KindToolResult, n.Kind)

	_, ok = view.ToolView("id2", "noSuchTool", "", "", nil)
	assert.False(t, ok)
}
