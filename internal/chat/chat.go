// Package chat orchestrates conversation turns: it owns the per-chat
// serialization, the durable append of every message a turn produces, the
// first model pass that decides between a plain answer and a tool
// invocation, and the delegation to the tool pipeline.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
	"github.com/amacdonaldai/gen-bionic/internal/log"
	"github.com/amacdonaldai/gen-bionic/internal/model"
	"github.com/amacdonaldai/gen-bionic/internal/stream"
	"github.com/amacdonaldai/gen-bionic/internal/tools"
	"github.com/amacdonaldai/gen-bionic/internal/view"
)

// Sentinel errors.
var (
	// ErrModelCall indicates the model pass failed after retries. The turn
	// is aborted; the user message stays in the log.
	ErrModelCall = errors.New("chat: model call failed")

	// ErrEmptyTurn indicates a submission with no text and no attachments.
	ErrEmptyTurn = errors.New("chat: empty turn")
)

// Store is the persistence surface the engine needs. *session.Store
// satisfies it.
type Store interface {
	Messages(ctx context.Context, chatID uuid.UUID) ([]conversation.Message, error)
	AppendMessages(ctx context.Context, chatID uuid.UUID, msgs ...conversation.Message) error
	SetTitle(ctx context.Context, chatID uuid.UUID, title string) error
}

// FileAttachment is a user-supplied file riding along with a turn.
type FileAttachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// TabularAttachment is extracted tabular text (e.g. a spreadsheet sheet)
// submitted alongside the turn.
type TabularAttachment struct {
	Name string
	Text string
}

// TurnRequest is one user submission.
type TurnRequest struct {
	ChatID  uuid.UUID
	Text    string
	Images  [][]byte
	Files   []FileAttachment
	Tabular []TabularAttachment

	// Model overrides the engine's default model for this turn.
	Model string

	// Views receives live view nodes (loading indicators, terminal tool
	// views). May be nil.
	Views tools.ViewEmitter

	// Stream receives response text deltas. May be nil.
	Stream model.StreamFunc
}

func (r *TurnRequest) validate() error {
	if r.ChatID == uuid.Nil {
		return errors.New("chat: turn requires a chat id")
	}
	if r.Text == "" && len(r.Images) == 0 && len(r.Files) == 0 && len(r.Tabular) == 0 {
		return ErrEmptyTurn
	}
	return nil
}

// TurnResult is the settled outcome of a turn.
type TurnResult struct {
	// User is the view node for the submitted user message.
	User view.Node

	// Final is the terminal assistant view: a plain text node or a tool
	// result view.
	Final view.Node

	// Degraded reports that a tool executed with an error envelope result.
	Degraded bool
}

// Config configures an Engine.
type Config struct {
	Store    Store
	Models   model.Client
	Registry *tools.Registry
	Logger   log.Logger

	SystemPrompt string
	DefaultModel string

	// RateLimit caps model calls per second across all chats; zero means
	// no limit.
	RateLimit rate.Limit
	RateBurst int

	Retry RetryConfig
}

func (c *Config) validate() error {
	if c.Store == nil {
		return errors.New("chat: engine requires a store")
	}
	if c.Models == nil {
		return errors.New("chat: engine requires a model client")
	}
	if c.Registry == nil {
		return errors.New("chat: engine requires a tool registry")
	}
	if c.Logger == nil {
		return errors.New("chat: engine requires a logger")
	}
	return nil
}

// Engine drives turns. One engine serves all chats; turns on the same
// chat are serialized, turns on different chats run concurrently.
type Engine struct {
	store        Store
	models       model.Client
	registry     *tools.Registry
	pipeline     *tools.Pipeline
	logger       log.Logger
	locks        chatLocks
	limiter      *rate.Limiter
	retry        RetryConfig
	systemPrompt string
	defaultModel string
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	pipeline, err := tools.NewPipeline(tools.PipelineConfig{
		Registry: cfg.Registry,
		Models:   cfg.Models,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}

	retryConfig := cfg.Retry
	if retryConfig.MaxRetries == 0 && retryConfig.InitialInterval == 0 {
		retryConfig = DefaultRetryConfig()
	}

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = model.DefaultModel
	}

	return &Engine{
		store:        cfg.Store,
		models:       cfg.Models,
		registry:     cfg.Registry,
		pipeline:     pipeline,
		logger:       cfg.Logger,
		limiter:      limiter,
		retry:        retryConfig,
		systemPrompt: cfg.SystemPrompt,
		defaultModel: defaultModel,
	}, nil
}

// SubmitTurn runs one turn to settlement. The user message is persisted
// first; a model failure after that point aborts the turn but keeps the
// user message, matching what the client already rendered.
func (e *Engine) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	modelName := req.Model
	if modelName == "" {
		modelName = e.defaultModel
	}

	unlock := e.locks.lock(req.ChatID)
	defer unlock()

	seed, err := e.store.Messages(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	clog := conversation.NewLogFrom(req.ChatID, seed)
	sink := &turnSink{store: e.store, log: clog}

	userMsg := conversation.NewUserMessage(buildParts(req)...)
	if err := sink.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	if len(seed) == 0 {
		e.setInitialTitle(ctx, req.ChatID, clog)
	}

	userView := view.Project([]conversation.Message{userMsg})[0]

	turn := &tools.TurnContext{
		Model:  modelName,
		Log:    clog,
		Sink:   sink,
		Views:  req.Views,
		Stream: req.Stream,
	}

	reply, err := e.streamedGenerate(ctx, req.Stream, model.Request{
		Model:    modelName,
		System:   e.systemPrompt,
		Messages: clog.Snapshot(),
		Tools:    e.registry.Decls(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelCall, err)
	}

	if reply.Tool != nil {
		out, err := e.pipeline.Run(ctx, turn, *reply.Tool)
		switch {
		case errors.Is(err, tools.ErrBadArguments) || errors.Is(err, tools.ErrUnknownTool):
			e.logger.WarnContext(ctx, "falling back to plain response", "chat_id", req.ChatID, "error", err)
			final, fellErr := e.plainResponse(ctx, sink, req.Stream, modelName, clog)
			if fellErr != nil {
				return nil, fellErr
			}
			return &TurnResult{User: userView, Final: final}, nil
		case err != nil:
			return nil, err
		}
		return &TurnResult{User: userView, Final: out.View, Degraded: out.Degraded}, nil
	}

	msg := conversation.NewAssistantText(reply.Text)
	if err := sink.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist response: %w", err)
	}
	return &TurnResult{
		User:  userView,
		Final: view.Node{Kind: view.KindPlainText, ID: msg.ID, Text: reply.Text},
	}, nil
}

// Replay projects a chat's durable log into its renderable views.
func (e *Engine) Replay(ctx context.Context, chatID uuid.UUID) ([]view.Node, error) {
	msgs, err := e.store.Messages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return view.Project(msgs), nil
}

// plainResponse runs a tool-free model pass and persists the answer. Used
// as the fallback when a tool directive is rejected.
func (e *Engine) plainResponse(ctx context.Context, sink *turnSink, forward model.StreamFunc, modelName string, clog *conversation.Log) (view.Node, error) {
	reply, err := e.streamedGenerate(ctx, forward, model.Request{
		Model:    modelName,
		System:   e.systemPrompt,
		Messages: clog.Snapshot(),
	})
	if err != nil {
		return view.Node{}, fmt.Errorf("%w: %v", ErrModelCall, err)
	}
	msg := conversation.NewAssistantText(reply.Text)
	if err := sink.Append(ctx, msg); err != nil {
		return view.Node{}, fmt.Errorf("persist response: %w", err)
	}
	return view.Node{Kind: view.KindPlainText, ID: msg.ID, Text: reply.Text}, nil
}

// streamedGenerate runs a model pass with deltas flowing through a stream
// channel to the caller's delta sink, retrying transient failures as long
// as nothing has been delivered yet.
func (e *Engine) streamedGenerate(ctx context.Context, forward model.StreamFunc, mreq model.Request) (*model.Reply, error) {
	ch := stream.New[string]()
	reader := ch.Subscribe()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		_, _ = reader.Drain(ctx, func(delta string) {
			if forward != nil {
				_ = forward(ctx, delta)
			}
		})
	}()

	delivered := false
	mreq.Stream = func(ctx context.Context, delta string) error {
		delivered = true
		return ch.Update(delta)
	}

	reply, err := e.generateWithRetry(ctx, mreq, &delivered)
	if err != nil {
		_ = ch.Fail(err)
		<-drained
		return nil, err
	}
	if reply.Tool != nil {
		_ = ch.Done("")
	} else {
		_ = ch.Done(reply.Text)
	}
	<-drained
	return reply, nil
}

// setInitialTitle derives the chat title from the first user message.
// Best effort; a failure never aborts the turn.
func (e *Engine) setInitialTitle(ctx context.Context, chatID uuid.UUID, clog *conversation.Log) {
	title := conversation.Title(clog.Snapshot())
	if title == conversation.DefaultTitle {
		return
	}
	if err := e.store.SetTitle(ctx, chatID, title); err != nil {
		e.logger.WarnContext(ctx, "failed to set chat title", "chat_id", chatID, "error", err)
	}
}

// buildParts assembles the user message content in submission order:
// text, then images, then files, then tabular sheets.
func buildParts(req TurnRequest) []conversation.ContentPart {
	var parts []conversation.ContentPart
	if req.Text != "" {
		parts = append(parts, conversation.TextPart(req.Text))
	}
	for _, img := range req.Images {
		parts = append(parts, conversation.ImagePart(img))
	}
	for _, f := range req.Files {
		parts = append(parts, conversation.FilePart(f.Data, f.MIMEType, f.Name))
	}
	for _, tab := range req.Tabular {
		parts = append(parts, conversation.FilePart([]byte(tab.Text), "text/csv", tab.Name))
	}
	return parts
}

// turnSink binds the durable store and the in-memory log so every append
// hits both, store first. A store failure leaves the in-memory log
// untouched.
type turnSink struct {
	store Store
	log   *conversation.Log
}

func (s *turnSink) Append(ctx context.Context, msgs ...conversation.Message) error {
	if err := s.store.AppendMessages(ctx, s.log.ChatID(), msgs...); err != nil {
		return err
	}
	s.log.Append(msgs...)
	return nil
}
