package model

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/google/uuid"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
	"github.com/amacdonaldai/gen-bionic/internal/log"
)

// GenkitClient implements Client on top of Genkit. Tool declarations are
// registered with Genkit once at startup; generation runs with
// return-tool-requests enabled so the engine, not Genkit, drives tool
// execution.
type GenkitClient struct {
	g      *genkit.Genkit
	tools  map[string]ai.Tool
	logger log.Logger
}

// NewGenkit initializes Genkit with the Google AI and OpenAI plugins and
// returns a client. API keys are read by the plugins from the environment.
func NewGenkit(ctx context.Context, logger log.Logger) (*GenkitClient, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}, &openai.OpenAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return NewGenkitClient(g, logger), nil
}

// NewGenkitClient wraps an existing Genkit instance.
func NewGenkitClient(g *genkit.Genkit, logger log.Logger) *GenkitClient {
	return &GenkitClient{g: g, tools: make(map[string]ai.Tool), logger: logger}
}

// Genkit exposes the underlying instance for tool registration.
func (c *GenkitClient) Genkit() *genkit.Genkit {
	return c.g
}

// AddTool makes a Genkit-defined tool referencable by name in requests.
func (c *GenkitClient) AddTool(t ai.Tool) {
	c.tools[t.Name()] = t
}

// Generate runs one model pass. When the model requests a tool, the first
// request becomes the reply's directive and no tool is executed here.
func (c *GenkitClient) Generate(ctx context.Context, req Request) (*Reply, error) {
	msgs, err := toGenkitMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(Resolve(req.Model)),
		ai.WithMessages(msgs...),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}

	if len(req.Tools) > 0 {
		refs := make([]ai.ToolRef, 0, len(req.Tools))
		for _, d := range req.Tools {
			t, ok := c.tools[d.Name]
			if !ok {
				return nil, fmt.Errorf("tool %q not registered with genkit", d.Name)
			}
			refs = append(refs, t)
		}
		opts = append(opts, ai.WithTools(refs...), ai.WithReturnToolRequests(true))
	}

	if req.Stream != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			for _, part := range chunk.Content {
				if part.Text != "" {
					if err := req.Stream(ctx, part.Text); err != nil {
						return err
					}
				}
			}
			return nil
		}))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	if trs := resp.ToolRequests(); len(trs) > 0 {
		tr := trs[0]
		args, err := json.Marshal(tr.Input)
		if err != nil {
			return nil, fmt.Errorf("marshal tool args: %w", err)
		}
		ref := tr.Ref
		if ref == "" {
			ref = uuid.NewString()
		}
		c.logger.Debug("model requested tool", "tool", tr.Name, "callId", ref)
		return &Reply{Tool: &ToolDirective{Name: tr.Name, CallID: ref, Args: args}}, nil
	}

	return &Reply{Text: resp.Text()}, nil
}

// toGenkitMessages converts the durable message model into Genkit's shape.
// System messages are dropped here; the system prompt travels separately.
func toGenkitMessages(msgs []conversation.Message) ([]*ai.Message, error) {
	out := make([]*ai.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case conversation.RoleSystem:
			continue
		case conversation.RoleUser:
			parts := make([]*ai.Part, 0, len(m.Content))
			for _, p := range m.Content {
				parts = append(parts, contentToPart(p))
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, ai.NewUserMessage(parts...))
		case conversation.RoleAssistant:
			msg, err := assistantToMessage(m)
			if err != nil {
				return nil, err
			}
			out = append(out, msg)
		case conversation.RoleTool:
			parts := make([]*ai.Part, 0, len(m.Results))
			for _, r := range m.Results {
				var output any
				if len(r.Result) > 0 {
					if err := json.Unmarshal(r.Result, &output); err != nil {
						return nil, fmt.Errorf("decode tool result for %s: %w", r.ToolName, err)
					}
				}
				parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
					Name:   r.ToolName,
					Ref:    r.CallID,
					Output: output,
				}))
			}
			out = append(out, &ai.Message{Role: ai.RoleTool, Content: parts})
		}
	}
	return out, nil
}

func contentToPart(p conversation.ContentPart) *ai.Part {
	switch p.Kind {
	case conversation.PartText:
		return ai.NewTextPart(p.Text)
	case conversation.PartImage:
		mediaType := http.DetectContentType(p.Image)
		encoded := base64.StdEncoding.EncodeToString(p.Image)
		return ai.NewMediaPart(mediaType, "data:"+mediaType+";base64,"+encoded)
	case conversation.PartFile:
		// Model providers accept arbitrary files unevenly; surface the
		// attachment as framed text the way the upstream client did.
		if isTextual(p.MIMEType) {
			return ai.NewTextPart(fmt.Sprintf("Attached file %s:\n%s", p.Name, string(p.Data)))
		}
		return ai.NewTextPart(fmt.Sprintf("[attached file: %s (%s)]", p.Name, p.MIMEType))
	default:
		return ai.NewTextPart(p.Text)
	}
}

func assistantToMessage(m conversation.Message) (*ai.Message, error) {
	if m.Parts == nil {
		return ai.NewModelMessage(ai.NewTextPart(m.Text)), nil
	}
	parts := make([]*ai.Part, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Kind {
		case conversation.AssistantToolCall:
			var input any
			if len(p.Args) > 0 {
				if err := json.Unmarshal(p.Args, &input); err != nil {
					return nil, fmt.Errorf("decode tool args for %s: %w", p.ToolName, err)
				}
			}
			parts = append(parts, ai.NewToolRequestPart(&ai.ToolRequest{
				Name:  p.ToolName,
				Ref:   p.CallID,
				Input: input,
			}))
		case conversation.AssistantText:
			parts = append(parts, ai.NewTextPart(p.Text))
		}
	}
	return ai.NewModelMessage(parts...), nil
}

func isTextual(mimeType string) bool {
	switch mimeType {
	case "text/plain", "text/csv", "text/markdown", "application/json":
		return true
	}
	return len(mimeType) > 5 && mimeType[:5] == "text/"
}
