package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amacdonaldai/gen-bionic/internal/chat"
	"github.com/amacdonaldai/gen-bionic/internal/conversation"
	"github.com/amacdonaldai/gen-bionic/internal/log"
	"github.com/amacdonaldai/gen-bionic/internal/model"
	"github.com/amacdonaldai/gen-bionic/internal/testutil"
	"github.com/amacdonaldai/gen-bionic/internal/tools"
	"github.com/amacdonaldai/gen-bionic/internal/view"
)

// memStore is an in-memory chat.Store.
type memStore struct {
	mu         sync.Mutex
	msgs       map[uuid.UUID][]conversation.Message
	titles     map[uuid.UUID]string
	failAppend bool
}

func newMemStore() *memStore {
	return &memStore{
		msgs:   make(map[uuid.UUID][]conversation.Message),
		titles: make(map[uuid.UUID]string),
	}
}

func (s *memStore) Messages(_ context.Context, chatID uuid.UUID) ([]conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conversation.Message, len(s.msgs[chatID]))
	copy(out, s.msgs[chatID])
	return out, nil
}

func (s *memStore) AppendMessages(_ context.Context, chatID uuid.UUID, msgs ...conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend {
		return errors.New("store unavailable")
	}
	s.msgs[chatID] = append(s.msgs[chatID], msgs...)
	return nil
}

func (s *memStore) SetTitle(_ context.Context, chatID uuid.UUID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles[chatID] = title
	return nil
}

// viewCollector records emitted view nodes.
type viewCollector struct {
	mu    sync.Mutex
	nodes []view.Node
}

func (c *viewCollector) EmitView(_ context.Context, node view.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = append(c.nodes, node)
}

func searchRegistry(t *testing.T, execute func(ctx context.Context, args json.RawMessage) (any, error)) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register(&tools.Definition{
		Name:            "searchWeb",
		Description:     "scripted search",
		Schema:          tools.MustSchema[tools.SearchWebInput](),
		NarrationPrompt: "Narrate the search result for the user.",
		Execute:         execute,
	}))
	return r
}

func newEngine(t *testing.T, store chat.Store, models model.Client, registry *tools.Registry) *chat.Engine {
	t.Helper()
	e, err := chat.New(chat.Config{
		Store:        store,
		Models:       models,
		Registry:     registry,
		Logger:       log.NewNop(),
		SystemPrompt: "You are a concise assistant.",
	})
	require.NoError(t, err)
	return e
}

func TestSubmitTurnPlainText(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	models := &testutil.ScriptedModel{
		Rules: []testutil.ModelRule{{Match: "capital of France", Text: "Paris."}},
	}
	registry := searchRegistry(t, func(context.Context, json.RawMessage) (any, error) {
		t.Fatal("tool must not execute on a plain turn")
		return nil, nil
	})
	e := newEngine(t, store, models, registry)

	chatID := uuid.New()
	var streamed string
	res, err := e.SubmitTurn(context.Background(), chat.TurnRequest{
		ChatID: chatID,
		Text:   "What is the capital of France?",
		Stream: func(_ context.Context, delta string) error {
			streamed += delta
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, view.KindUser, res.User.Kind)
	assert.Equal(t, view.KindPlainText, res.Final.Kind)
	assert.Equal(t, "Paris.", res.Final.Text)
	assert.Equal(t, "Paris.", streamed)

	msgs, _ := store.Messages(context.Background(), chatID)
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, "Paris.", msgs[1].Text)

	assert.Equal(t, "What is the capital of France?", store.titles[chatID],
		"first turn derives the chat title")
}

func TestSubmitTurnToolInvocation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	models := &testutil.ScriptedModel{
		Rules: []testutil.ModelRule{
			{Match: "Narrate the search result", Text: "The weather in Taipei is sunny."},
			{Match: "weather", Tool: &model.ToolDirective{
				Name:   "searchWeb",
				CallID: "call-1",
				Args:   json.RawMessage(`{"query":"taipei weather"}`),
			}, RequiresTools: true},
		},
	}
	registry := searchRegistry(t, func(_ context.Context, args json.RawMessage) (any, error) {
		assert.JSONEq(t, `{"query":"taipei weather"}`, string(args))
		return map[string]string{"forecast": "sunny"}, nil
	})
	e := newEngine(t, store, models, registry)

	chatID := uuid.New()
	views := &viewCollector{}
	res, err := e.SubmitTurn(context.Background(), chat.TurnRequest{
		ChatID: chatID,
		Text:   "what's the weather in taipei?",
		Views:  views,
	})
	require.NoError(t, err)

	assert.Equal(t, view.KindToolResult, res.Final.Kind)
	assert.Equal(t, "searchWeb", res.Final.ToolName)
	assert.Equal(t, "The weather in Taipei is sunny.", res.Final.Text)
	assert.False(t, res.Degraded)

	// Loading view, the raw result that resolves it, then the narration.
	require.Len(t, views.nodes, 3)
	assert.Equal(t, view.KindLoading, views.nodes[0].Kind)
	assert.Equal(t, view.KindToolResult, views.nodes[1].Kind)
	assert.JSONEq(t, `{"forecast":"sunny"}`, string(views.nodes[1].Payload))
	assert.Equal(t, res.Final, views.nodes[2])

	// user, tool call, tool result, narration.
	msgs, _ := store.Messages(context.Background(), chatID)
	require.Len(t, msgs, 4)

	// Replaying the stored log reproduces the live views.
	replayed, err := e.Replay(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, replayed, 3) // user, tool result payload, narration
	assert.Equal(t, views.nodes[1:], replayed[1:])
	assert.Equal(t, res.Final, replayed[2])
}

func TestSubmitTurnToolFallback(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	models := &testutil.ScriptedModel{
		Rules: []testutil.ModelRule{
			{Match: "weather", Tool: &model.ToolDirective{
				Name:   "searchWeb",
				CallID: "call-1",
				Args:   json.RawMessage(`{"query":42}`),
			}, RequiresTools: true},
			{Match: "weather", Text: "I could not look that up, but it is usually humid."},
		},
	}
	registry := searchRegistry(t, func(context.Context, json.RawMessage) (any, error) {
		t.Fatal("tool must not execute on invalid arguments")
		return nil, nil
	})
	e := newEngine(t, store, models, registry)

	chatID := uuid.New()
	res, err := e.SubmitTurn(context.Background(), chat.TurnRequest{
		ChatID: chatID,
		Text:   "what's the weather in taipei?",
	})
	require.NoError(t, err)

	assert.Equal(t, view.KindPlainText, res.Final.Kind)
	assert.Contains(t, res.Final.Text, "usually humid")

	// Only the user message and the fallback answer are persisted.
	msgs, _ := store.Messages(context.Background(), chatID)
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
}

func TestSubmitTurnModelFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	models := &testutil.ScriptedModel{
		Rules: []testutil.ModelRule{{Match: "", Err: errors.New("model exploded")}},
	}
	registry := searchRegistry(t, func(context.Context, json.RawMessage) (any, error) { return nil, nil })
	e := newEngine(t, store, models, registry)

	chatID := uuid.New()
	_, err := e.SubmitTurn(context.Background(), chat.TurnRequest{ChatID: chatID, Text: "hello"})
	require.ErrorIs(t, err, chat.ErrModelCall)

	// The user message survives the aborted turn.
	msgs, _ := store.Messages(context.Background(), chatID)
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
}

func TestSubmitTurnValidation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	models := &testutil.ScriptedModel{Default: "ok"}
	registry := searchRegistry(t, func(context.Context, json.RawMessage) (any, error) { return nil, nil })
	e := newEngine(t, store, models, registry)

	_, err := e.SubmitTurn(context.Background(), chat.TurnRequest{ChatID: uuid.New()})
	assert.ErrorIs(t, err, chat.ErrEmptyTurn)

	_, err = e.SubmitTurn(context.Background(), chat.TurnRequest{Text: "hi"})
	assert.Error(t, err)
}

func TestSubmitTurnAttachments(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	models := &testutil.ScriptedModel{Default: "Nice picture."}
	registry := searchRegistry(t, func(context.Context, json.RawMessage) (any, error) { return nil, nil })
	e := newEngine(t, store, models, registry)

	chatID := uuid.New()
	res, err := e.SubmitTurn(context.Background(), chat.TurnRequest{
		ChatID:  chatID,
		Text:    "what is in this image?",
		Images:  [][]byte{{0x89, 0x50, 0x4e, 0x47}},
		Files:   []chat.FileAttachment{{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("hello")}},
		Tabular: []chat.TabularAttachment{{Name: "sheet1", Text: "a,b\n1,2"}},
	})
	require.NoError(t, err)

	require.Len(t, res.User.Fragments, 4)
	assert.Equal(t, view.FragmentParagraph, res.User.Fragments[0].Kind)
	assert.Equal(t, view.FragmentImage, res.User.Fragments[1].Kind)
	assert.Equal(t, view.FragmentFile, res.User.Fragments[2].Kind)
	assert.Equal(t, view.FragmentFile, res.User.Fragments[3].Kind)

	msgs, _ := store.Messages(context.Background(), chatID)
	require.Len(t, msgs[0].Content, 4)
	assert.Equal(t, conversation.PartImage, msgs[0].Content[1].Kind)
	assert.Equal(t, "notes.txt", msgs[0].Content[2].Name)
	assert.Equal(t, "text/csv", msgs[0].Content[3].MIMEType)
}

func TestSubmitTurnSerializesPerChat(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	models := &testutil.ScriptedModel{Default: "ack"}
	registry := searchRegistry(t, func(context.Context, json.RawMessage) (any, error) { return nil, nil })
	e := newEngine(t, store, models, registry)

	chatID := uuid.New()
	const turns = 6
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.SubmitTurn(context.Background(), chat.TurnRequest{ChatID: chatID, Text: "ping"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Serialized turns interleave nothing: messages alternate user and
	// assistant in strict turn order.
	msgs, _ := store.Messages(context.Background(), chatID)
	require.Len(t, msgs, turns*2)
	for i, msg := range msgs {
		if i%2 == 0 {
			assert.Equal(t, conversation.RoleUser, msg.Role, "message %d", i)
		} else {
			assert.Equal(t, conversation.RoleAssistant, msg.Role, "message %d", i)
		}
	}
}
