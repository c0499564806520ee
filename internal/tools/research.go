package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
	"github.com/amacdonaldai/gen-bionic/internal/model"
)

const (
	researchDescription = "Research a topic in depth: gather web sources and produce a structured report with sections. Use for open-ended research requests, not quick lookups."
	researchNarration   = "You are a helpful assistant. Give the user a short overview of the research report in the conversation and invite follow-up questions on its sections."
)

// ReportSection is one section of a research report.
type ReportSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// ResearchOutput is the persisted result of a researchReport invocation.
type ResearchOutput struct {
	Topic    string          `json:"topic"`
	Summary  string          `json:"summary"`
	Sections []ReportSection `json:"sections"`
	Sources  []string        `json:"sources,omitempty"`
}

// Searcher gathers web material for a topic. *WebSearcher satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) (*SearchWebOutput, error)
}

// Researcher produces sectioned research reports by combining a web search
// pass with a structured model pass.
type Researcher struct {
	searcher  Searcher
	models    model.Client
	modelName string
}

// NewResearcher creates a Researcher.
func NewResearcher(searcher Searcher, models model.Client, modelName string) *Researcher {
	return &Researcher{searcher: searcher, models: models, modelName: modelName}
}

// Definition returns the researchReport tool backed by this researcher.
func (r *Researcher) Definition() *Definition {
	return &Definition{
		Name:            "researchReport",
		Description:     researchDescription,
		Schema:          MustSchema[ResearchInput](),
		NarrationPrompt: researchNarration,
		Prepare: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in ResearchInput
			if err := json.Unmarshal(args, &in); err != nil {
				return "", err
			}
			return in.Topic, nil
		},
		Meta: func(args json.RawMessage) string {
			var in ResearchInput
			_ = json.Unmarshal(args, &in)
			return in.Topic
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in ResearchInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return r.Report(ctx, in.Topic)
		},
	}
}

// Report gathers sources and synthesizes the report. A search failure
// degrades to a report written from the model's own knowledge; a failed
// synthesis pass is an execution error.
func (r *Researcher) Report(ctx context.Context, topic string) (*ResearchOutput, error) {
	var material strings.Builder
	var sources []string
	if found, err := r.searcher.Search(ctx, topic); err == nil {
		for _, res := range found.Results {
			fmt.Fprintf(&material, "Source: %s (%s)\n%s\n\n", res.Title, res.URL, res.Snippet)
			sources = append(sources, res.URL)
		}
		if found.Content != "" {
			fmt.Fprintf(&material, "Top source content:\n%s\n", found.Content)
		}
	}

	prompt := fmt.Sprintf(
		"Write a research report about %q. Respond with only a JSON object, no prose: {\"summary\": string, \"sections\": [{\"heading\": string, \"content\": string}]} with 3-5 sections.",
		topic,
	)
	if material.Len() > 0 {
		prompt += "\n\nBase the report on this gathered material where relevant:\n" + material.String()
	}

	reply, err := r.models.Generate(ctx, model.Request{
		Model:    r.modelName,
		Messages: []conversation.Message{conversation.NewUserMessage(conversation.TextPart(prompt))},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize report: %w", err)
	}

	out, err := parseReport(reply.Text)
	if err != nil {
		return nil, fmt.Errorf("synthesize report: %w", err)
	}
	out.Topic = topic
	out.Sources = sources
	return out, nil
}

func parseReport(text string) (*ResearchOutput, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	var out ResearchOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	if out.Summary == "" && len(out.Sections) == 0 {
		return nil, fmt.Errorf("empty report")
	}
	return &out, nil
}
