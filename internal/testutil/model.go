package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
	"github.com/amacdonaldai/gen-bionic/internal/model"
)

// ModelRule scripts one response. The first rule whose Match substring
// occurs in the conversation's user or system text wins.
type ModelRule struct {
	Match string
	Text  string
	Tool  *model.ToolDirective
	Err   error

	// RequiresTools restricts the rule to requests that offer tool
	// declarations, letting scripts answer differently on tool-free
	// fallback passes.
	RequiresTools bool
}

// ScriptedModel is a model.Client that replays scripted responses and
// records every request it sees. Safe for concurrent use.
type ScriptedModel struct {
	Rules   []ModelRule
	Default string

	mu    sync.Mutex
	calls []model.Request
}

// Generate matches the request against the rules. Text responses are
// streamed in two deltas when the request carries a stream callback.
func (m *ScriptedModel) Generate(ctx context.Context, req model.Request) (*model.Reply, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	text := m.Default
	var tool *model.ToolDirective
	haystack := requestText(req)
	for _, rule := range m.Rules {
		if rule.Match != "" && !strings.Contains(haystack, rule.Match) {
			continue
		}
		if rule.RequiresTools && len(req.Tools) == 0 {
			continue
		}
		if rule.Err != nil {
			return nil, rule.Err
		}
		text = rule.Text
		tool = rule.Tool
		break
	}

	if tool != nil {
		cp := *tool
		return &model.Reply{Tool: &cp}, nil
	}

	if req.Stream != nil && text != "" {
		half := len(text) / 2
		if err := req.Stream(ctx, text[:half]); err != nil {
			return nil, err
		}
		if err := req.Stream(ctx, text[half:]); err != nil {
			return nil, err
		}
	}
	return &model.Reply{Text: text}, nil
}

// Calls returns a copy of the recorded requests.
func (m *ScriptedModel) Calls() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func requestText(req model.Request) string {
	text := req.System
	for _, msg := range req.Messages {
		text += "\n" + msg.Text
		for _, p := range msg.Content {
			if p.Kind == conversation.PartText {
				text += "\n" + p.Text
			}
		}
	}
	return text
}
