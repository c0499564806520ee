// Package view derives renderable nodes from a conversation log.
//
// Project is a pure function: no I/O, no side effects, deterministic for a
// given message sequence. It is the single code path for both the live
// incremental display and cold replay after a reload, which is what makes
// the two views provably identical.
package view

import (
	"encoding/json"
	"fmt"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
)

// Kind discriminates view nodes.
type Kind string

const (
	// KindUser renders a user submission (text, images, file links).
	KindUser Kind = "user"
	// KindPlainText renders a plain assistant response.
	KindPlainText Kind = "text"
	// KindToolResult renders a tool outcome with optional narration.
	KindToolResult Kind = "tool-result"
	// KindLoading is emitted live while a tool pipeline runs.
	// It never appears in a projection.
	KindLoading Kind = "loading"
)

// FragmentKind discriminates user sub-views.
type FragmentKind string

const (
	FragmentParagraph FragmentKind = "paragraph"
	FragmentImage     FragmentKind = "image"
	FragmentFile      FragmentKind = "file"
)

// Fragment is one renderable piece of a user view.
type Fragment struct {
	Kind     FragmentKind `json:"kind"`
	Text     string       `json:"text,omitempty"`
	Image    []byte       `json:"image,omitempty"`
	Name     string       `json:"name,omitempty"`
	MIMEType string       `json:"mimeType,omitempty"`
}

// Node is the abstract output of projection. Never persisted; recomputed
// on demand from the log.
type Node struct {
	Kind      Kind            `json:"kind"`
	ID        string          `json:"id"`
	Fragments []Fragment      `json:"fragments,omitempty"`
	Text      string          `json:"text,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	Meta      string          `json:"meta,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// knownTools is the dispatch table shared by live narration and replay.
// A tool absent from this table projects to nothing: unrecognized names
// are dropped, never an error.
var knownTools = map[string]bool{
	"searchWeb":       true,
	"generateImage":   true,
	"arxivApiCaller":  true,
	"wikipediaSearch": true,
	"generateSlides":  true,
	"researchReport":  true,
}

// KnownTool reports whether name has a view mapping. The tool registry
// rejects registrations for names missing here, keeping the live and
// replay dispatch tables identical by construction.
func KnownTool(name string) bool {
	return knownTools[name]
}

// Loading builds the transient view shown while a tool executes.
// summary carries any cheap pre-execution context (e.g. a reformulated
// query) and may be empty.
func Loading(id, toolName, summary string) Node {
	return Node{Kind: KindLoading, ID: id, ToolName: toolName, Text: summary}
}

// ToolView builds the result view for a named tool. It is used by the
// pipeline for the live terminal view and by Project for replay; both
// paths dispatch through the same table. ok is false for unknown names.
func ToolView(id, toolName, text, meta string, payload json.RawMessage) (Node, bool) {
	if !KnownTool(toolName) {
		return Node{}, false
	}
	return Node{
		Kind:     KindToolResult,
		ID:       id,
		ToolName: toolName,
		Text:     text,
		Meta:     meta,
		Payload:  payload,
	}, true
}

// Project maps a conversation log to its ordered view nodes.
//
// Rules:
//   - system messages are excluded
//   - user content parts map to fragments; unknown part kinds are skipped
//   - tool results map through the shared dispatch table; unknown tool
//     names are dropped
//   - plain assistant text maps to a text node; structured assistant parts
//     dispatch on part kind, with narration parts going through ToolView
func Project(msgs []conversation.Message) []Node {
	var nodes []Node
	for _, m := range msgs {
		switch m.Role {
		case conversation.RoleSystem:
			// Excluded from projection.
		case conversation.RoleUser:
			nodes = append(nodes, userNode(m))
		case conversation.RoleTool:
			for i, res := range m.Results {
				n, ok := ToolView(childID(m.ID, i), res.ToolName, "", "", res.Result)
				if !ok {
					continue
				}
				nodes = append(nodes, n)
			}
		case conversation.RoleAssistant:
			nodes = append(nodes, assistantNodes(m)...)
		default:
			// Unknown role: dropped, never an error.
		}
	}
	return nodes
}

func userNode(m conversation.Message) Node {
	var frags []Fragment
	for _, p := range m.Content {
		switch p.Kind {
		case conversation.PartText:
			frags = append(frags, Fragment{Kind: FragmentParagraph, Text: p.Text})
		case conversation.PartImage:
			frags = append(frags, Fragment{Kind: FragmentImage, Image: p.Image})
		case conversation.PartFile:
			frags = append(frags, Fragment{Kind: FragmentFile, Name: p.Name, MIMEType: p.MIMEType})
		default:
			// Unknown part kind: skipped.
		}
	}
	return Node{Kind: KindUser, ID: m.ID, Fragments: frags}
}

func assistantNodes(m conversation.Message) []Node {
	if m.Parts == nil {
		return []Node{{Kind: KindPlainText, ID: m.ID, Text: m.Text}}
	}

	var nodes []Node
	for i, p := range m.Parts {
		switch p.Kind {
		case conversation.AssistantToolCall:
			// Invocation record; the renderable view comes from the
			// narration part that follows it in the log.
		case conversation.AssistantText:
			if p.ToolName == "" {
				nodes = append(nodes, Node{Kind: KindPlainText, ID: childID(m.ID, i), Text: p.Text})
				continue
			}
			n, ok := ToolView(childID(m.ID, i), p.ToolName, p.Text, p.Meta, nil)
			if !ok {
				continue
			}
			nodes = append(nodes, n)
		default:
			// Unknown part kind: skipped.
		}
	}
	return nodes
}

func childID(msgID string, i int) string {
	return fmt.Sprintf("%s-%d", msgID, i)
}
