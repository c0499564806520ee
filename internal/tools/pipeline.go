package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
	"github.com/amacdonaldai/gen-bionic/internal/log"
	"github.com/amacdonaldai/gen-bionic/internal/model"
	"github.com/amacdonaldai/gen-bionic/internal/stream"
	"github.com/amacdonaldai/gen-bionic/internal/view"
)

// Phase is the progression of one tool invocation. Phases advance strictly
// forward; PhaseFailed is terminal and reachable from any phase before
// completion.
type Phase int

const (
	PhaseInvoked Phase = iota
	PhaseLoadingEmitted
	PhaseExecuted
	PhaseResultPersisted
	PhaseNarrationStreaming
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInvoked:
		return "invoked"
	case PhaseLoadingEmitted:
		return "loading_emitted"
	case PhaseExecuted:
		return "executed"
	case PhaseResultPersisted:
		return "result_persisted"
	case PhaseNarrationStreaming:
		return "narration_streaming"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// narrationFallback replaces the narrated summary when the narration model
// pass itself fails. The tool result is already persisted at that point, so
// the invocation still completes.
const narrationFallback = "Sorry, I couldn't summarize this result. The raw data is preserved above."

// Outcome is the result of a completed invocation.
type Outcome struct {
	// Phase is PhaseCompleted; earlier phases never escape Run.
	Phase Phase

	// Degraded reports that execution failed and the persisted result is
	// the error envelope rather than real tool output.
	Degraded bool

	// View is the terminal view node for the invocation.
	View view.Node
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Registry *Registry
	Models   model.Client
	Logger   log.Logger
}

func (c *PipelineConfig) validate() error {
	if c.Registry == nil {
		return errors.New("tools: pipeline requires a registry")
	}
	if c.Models == nil {
		return errors.New("tools: pipeline requires a model client")
	}
	if c.Logger == nil {
		return errors.New("tools: pipeline requires a logger")
	}
	return nil
}

// Pipeline drives tool invocations. One Pipeline serves all chats; the
// per-turn state travels in the TurnContext.
type Pipeline struct {
	registry *Registry
	models   model.Client
	logger   log.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{registry: cfg.Registry, models: cfg.Models, logger: cfg.Logger}, nil
}

// Run executes one tool directive through the full invocation lifecycle:
// validate, emit the loading view, execute, persist the invocation record
// and its result as one unit, narrate, and emit the terminal view.
//
// A failing Execute does not fail the invocation: the persisted result
// becomes an error envelope and the lifecycle continues, so the client
// always sees the loading view resolve. Unknown tools and invalid
// arguments return ErrUnknownTool / ErrBadArguments so the caller can fall
// back to a plain-text turn. Persistence errors are fatal to the turn.
func (p *Pipeline) Run(ctx context.Context, t *TurnContext, directive model.ToolDirective) (*Outcome, error) {
	def, ok := p.registry.Lookup(directive.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, directive.Name)
	}
	if err := def.validateArgs(directive.Args); err != nil {
		return nil, err
	}

	phase := PhaseInvoked
	logger := p.logger.With("tool", directive.Name, "call_id", directive.CallID)
	logger.DebugContext(ctx, "tool invocation started", "phase", phase.String())

	summary := ""
	if def.Prepare != nil {
		s, err := def.Prepare(ctx, directive.Args)
		if err != nil {
			logger.DebugContext(ctx, "prepare failed, loading view degrades to empty summary", "error", err)
		} else {
			summary = s
		}
	}
	t.emitView(ctx, view.Loading(directive.CallID, directive.Name, summary))
	phase = PhaseLoadingEmitted

	result, execErr := def.Execute(ctx, directive.Args)
	if ctx.Err() != nil {
		logger.DebugContext(ctx, "tool invocation canceled", "phase", PhaseFailed.String())
		return nil, ctx.Err()
	}
	degraded := false
	if execErr != nil {
		logger.WarnContext(ctx, "tool execution failed, recording error envelope", "error", execErr)
		degraded = true
		result = map[string]string{"error": execErr.Error()}
	}
	phase = PhaseExecuted

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result of %q: %w", directive.Name, err)
	}

	meta := ""
	if def.Meta != nil {
		meta = def.Meta(directive.Args)
	}

	// The invocation record and its result are appended together: a log
	// never holds a tool call without its result.
	callMsg := conversation.NewAssistantParts(conversation.AssistantPart{
		Kind:     conversation.AssistantToolCall,
		ToolName: directive.Name,
		CallID:   directive.CallID,
		Args:     directive.Args,
	})
	toolMsg := conversation.NewToolMessage(conversation.ToolResult{
		ToolName: directive.Name,
		CallID:   directive.CallID,
		Result:   raw,
	})
	if err := t.Sink.Append(ctx, callMsg, toolMsg); err != nil {
		return nil, fmt.Errorf("persist invocation of %q: %w", directive.Name, err)
	}
	phase = PhaseResultPersisted

	// The result view resolves the loading indicator. Its identifier is
	// the one replay derives for the tool message, so the live sequence
	// and a cold projection agree node for node.
	resultNode, _ := view.ToolView(childViewID(toolMsg.ID, 0), directive.Name, "", "", raw)
	t.emitView(ctx, resultNode)

	terminal := resultNode
	if def.NarrationPrompt != "" {
		phase = PhaseNarrationStreaming
		logger.DebugContext(ctx, "narrating result", "phase", phase.String())
		text, err := p.narrate(ctx, t, def.NarrationPrompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WarnContext(ctx, "narration failed, using fallback text", "error", err)
			text = narrationFallback
		}
		narrMsg := conversation.NewAssistantParts(conversation.AssistantPart{
			Kind:     conversation.AssistantText,
			ToolName: directive.Name,
			CallID:   directive.CallID,
			Text:     text,
			Meta:     meta,
		})
		if err := t.Sink.Append(ctx, narrMsg); err != nil {
			return nil, fmt.Errorf("persist narration of %q: %w", directive.Name, err)
		}
		terminal, _ = view.ToolView(childViewID(narrMsg.ID, 0), directive.Name, text, meta, nil)
		t.emitView(ctx, terminal)
	}

	phase = PhaseCompleted
	logger.DebugContext(ctx, "tool invocation finished", "phase", phase.String(), "degraded", degraded)
	return &Outcome{Phase: phase, Degraded: degraded, View: terminal}, nil
}

// narrate runs the follow-up model pass over the updated log. Deltas flow
// through a dedicated stream channel to the turn's delta sink; the returned
// text is the channel's settled value.
func (p *Pipeline) narrate(ctx context.Context, t *TurnContext, prompt string) (string, error) {
	ch := stream.New[string]()
	reader := ch.Subscribe()

	drained := make(chan struct{})
	var final string
	go func() {
		defer close(drained)
		final, _ = reader.Drain(ctx, func(delta string) {
			if t.Stream != nil {
				_ = t.Stream(ctx, delta)
			}
		})
	}()

	reply, err := p.models.Generate(ctx, model.Request{
		Model:    t.Model,
		System:   prompt,
		Messages: t.Log.Snapshot(),
		Stream: func(ctx context.Context, delta string) error {
			return ch.Update(delta)
		},
	})
	if err != nil {
		_ = ch.Fail(err)
		<-drained
		return "", err
	}
	_ = ch.Done(reply.Text)
	<-drained
	if final == "" {
		final = reply.Text
	}
	return final, nil
}

// childViewID matches the identifier replay assigns to a message's i-th
// renderable part, keeping live and replayed views aligned.
func childViewID(msgID string, i int) string {
	return fmt.Sprintf("%s-%d", msgID, i)
}
