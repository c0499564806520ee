// Package model defines the model-collaborator boundary: one interface the
// engine calls to run a model pass over a conversation, with the provider
// wiring kept behind it.
package model

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
)

// Decl declares one tool to the model: enough for it to decide whether to
// invoke the tool and with what arguments. Execution stays with the engine.
type Decl struct {
	Name        string
	Description string
}

// ToolDirective is the model's request to invoke a tool.
type ToolDirective struct {
	Name   string
	CallID string
	Args   json.RawMessage
}

// StreamFunc receives incremental text deltas. Returning an error aborts
// the stream.
type StreamFunc func(ctx context.Context, delta string) error

// Request describes one model pass.
type Request struct {
	// Model is the caller-facing model identifier (e.g. "gpt-4o").
	Model string
	// System is the system prompt for this pass.
	System string
	// Messages is the full conversation context, oldest first.
	Messages []conversation.Message
	// Tools lists the tools the model may request. Empty means text only.
	Tools []Decl
	// Stream, when non-nil, receives text deltas as they are generated.
	Stream StreamFunc
}

// Reply is the outcome of a model pass: either complete text or a tool
// directive, never both.
type Reply struct {
	Text string
	Tool *ToolDirective
}

// Client is the model collaborator contract. Implementations must be safe
// for concurrent use.
type Client interface {
	Generate(ctx context.Context, req Request) (*Reply, error)
}

// DefaultModel is used when a requested model matches no known provider.
const DefaultModel = "openai/gpt-4o"

// Resolve maps a caller-facing model identifier to a provider-qualified
// Genkit model name. Already-qualified names pass through unchanged;
// unknown identifiers fall back to DefaultModel.
func Resolve(model string) string {
	switch {
	case strings.Contains(model, "/"):
		return model
	case strings.HasPrefix(model, "gpt"):
		return "openai/" + model
	case strings.HasPrefix(model, "gemini"):
		return "googleai/" + model
	default:
		return DefaultModel
	}
}
