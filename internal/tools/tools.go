// Package tools provides the tool registry and the per-invocation pipeline
// that drives a tool call from the model's directive through execution,
// persistence, and the narrated follow-up response.
//
// A tool is data plus function pointers: name, description, a parameter
// schema the arguments are validated against, an optional cheap prepare
// step for the loading view, the execute function, and the system prompt
// for the narration pass. There is no inheritance hierarchy; the registry
// is a plain name-keyed mapping.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
	"github.com/amacdonaldai/gen-bionic/internal/model"
	"github.com/amacdonaldai/gen-bionic/internal/view"
)

// Sentinel errors for tool invocation.
var (
	// ErrUnknownTool indicates the directive names an unregistered tool.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrBadArguments indicates the arguments failed schema validation.
	// The turn falls back to a plain-text response.
	ErrBadArguments = errors.New("invalid tool arguments")
)

// Definition describes one registered tool.
type Definition struct {
	// Name is the unique tool identifier the model dispatches on.
	Name string

	// Description tells the model when to invoke the tool.
	Description string

	// Schema validates the model-provided arguments before execution.
	Schema *jsonschema.Resolved

	// Prepare optionally computes a cheap pre-execution summary for the
	// loading view (e.g. a reformulated query). Its failure is non-fatal
	// and degrades to an empty summary.
	Prepare func(ctx context.Context, args json.RawMessage) (string, error)

	// Execute runs the tool's external call.
	Execute func(ctx context.Context, args json.RawMessage) (any, error)

	// Meta optionally derives the display metadata recorded alongside the
	// narration (e.g. the effective query string).
	Meta func(args json.RawMessage) string

	// NarrationPrompt is the system prompt for the second model pass that
	// narrates the result. Empty means the tool's raw result view is the
	// terminal view and no narration pass runs.
	NarrationPrompt string

	// DefineGenkit registers the tool's typed declaration with Genkit so
	// the model sees its parameter schema. Nil for engines running against
	// non-Genkit clients.
	DefineGenkit func(g *genkit.Genkit) ai.Tool
}

// MustSchema builds a resolved parameter schema from an input struct type.
// Panics on failure; schemas are constructed at registration time from
// static types, so failure is a programming error.
func MustSchema[In any]() *jsonschema.Resolved {
	sch, err := jsonschema.For[In](nil)
	if err != nil {
		panic(fmt.Sprintf("tools: schema for %T: %v", *new(In), err))
	}
	resolved, err := sch.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("tools: resolve schema for %T: %v", *new(In), err))
	}
	return resolved
}

// Registry is the static name-to-definition mapping consulted by the
// pipeline. Populate at startup; read-only afterwards, so safe for
// concurrent use.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a tool definition. The name must be unique and must have a
// view mapping: requiring view.KnownTool here keeps the live dispatch table
// and the replay dispatch table identical by construction.
func (r *Registry) Register(d *Definition) error {
	if d.Name == "" || d.Execute == nil {
		return errors.New("tools: definition needs a name and an execute function")
	}
	if !view.KnownTool(d.Name) {
		return fmt.Errorf("tools: %q has no view mapping", d.Name)
	}
	if _, exists := r.defs[d.Name]; exists {
		return fmt.Errorf("tools: %q already registered", d.Name)
	}
	r.defs[d.Name] = d
	return nil
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Decls returns the model-facing declarations in stable name order.
func (r *Registry) Decls() []model.Decl {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)

	decls := make([]model.Decl, 0, len(names))
	for _, name := range names {
		decls = append(decls, model.Decl{Name: name, Description: r.defs[name].Description})
	}
	return decls
}

// DefineAll registers every tool declaration with Genkit and returns the
// defined tools for the model client.
func (r *Registry) DefineAll(g *genkit.Genkit) []ai.Tool {
	var defined []ai.Tool
	for _, d := range r.defs {
		if d.DefineGenkit != nil {
			defined = append(defined, d.DefineGenkit(g))
		}
	}
	return defined
}

// validateArgs checks raw arguments against the definition's schema.
func (d *Definition) validateArgs(args json.RawMessage) error {
	if d.Schema == nil {
		return nil
	}
	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	if err := d.Schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	return nil
}

// Appender is the durable sink for messages produced during a turn.
// A single Append call with multiple messages is one logical unit: the
// implementation persists all of them or none.
type Appender interface {
	Append(ctx context.Context, msgs ...conversation.Message) error
}

// ViewEmitter receives incremental view nodes during a live turn.
// Implementations must not block the pipeline; replay paths pass nil.
type ViewEmitter interface {
	EmitView(ctx context.Context, node view.Node)
}

// TurnContext carries one turn's collaborators through the orchestrator
// and pipeline. It is owned by the call and never shared across turns.
type TurnContext struct {
	// Model is the caller-selected model identifier for this turn.
	Model string

	// Log is the in-memory conversation log for the active chat.
	Log *conversation.Log

	// Sink persists appended messages durably.
	Sink Appender

	// Views receives live view nodes; may be nil.
	Views ViewEmitter

	// Stream receives narration text deltas; may be nil.
	Stream model.StreamFunc
}

// emitView forwards a node to the turn's emitter when one is attached.
func (t *TurnContext) emitView(ctx context.Context, node view.Node) {
	if t.Views != nil {
		t.Views.EmitView(ctx, node)
	}
}
