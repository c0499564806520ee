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
	minSlides = 2
	maxSlides = 10

	slidesDescription = "Generate a slide deck outline on a topic with a requested number of slides."
	slidesNarration   = "You are a helpful assistant. Briefly explain the content of the slides you've created, one sentence per slide."
)

// Slide is one slide in the generateSlides payload.
type Slide struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SlidesOutput is the persisted result of a generateSlides invocation.
type SlidesOutput struct {
	Topic  string  `json:"topic"`
	Slides []Slide `json:"slides"`
}

// SlideGenerator produces slide decks through a model pass that returns
// structured JSON.
type SlideGenerator struct {
	models    model.Client
	modelName string
}

// NewSlideGenerator creates a SlideGenerator. modelName selects the model
// for the structured generation pass.
func NewSlideGenerator(models model.Client, modelName string) *SlideGenerator {
	return &SlideGenerator{models: models, modelName: modelName}
}

// Definition returns the generateSlides tool backed by this generator.
func (g *SlideGenerator) Definition() *Definition {
	return &Definition{
		Name:            "generateSlides",
		Description:     slidesDescription,
		Schema:          MustSchema[SlidesInput](),
		NarrationPrompt: slidesNarration,
		Prepare: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in SlidesInput
			if err := json.Unmarshal(args, &in); err != nil {
				return "", err
			}
			return in.Topic, nil
		},
		Meta: func(args json.RawMessage) string {
			var in SlidesInput
			_ = json.Unmarshal(args, &in)
			return in.Topic
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in SlidesInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return g.Generate(ctx, in.Topic, in.NumberOfSlides)
		},
	}
}

// Generate builds a deck of clamp(count, 2, 10) slides. A failed or
// malformed generation yields a single error slide so the deck view still
// renders.
func (g *SlideGenerator) Generate(ctx context.Context, topic string, count int) (*SlidesOutput, error) {
	count = clampSlides(count)

	prompt := fmt.Sprintf(
		"Create exactly %d presentation slides about %q. Respond with only a JSON array, no prose, where each element is {\"title\": string, \"content\": string} and content is 2-3 sentences.",
		count, topic,
	)
	reply, err := g.models.Generate(ctx, model.Request{
		Model:    g.modelName,
		Messages: []conversation.Message{conversation.NewUserMessage(conversation.TextPart(prompt))},
	})
	if err != nil {
		return errorDeck(topic, fmt.Sprintf("Slide generation failed: %v", err)), nil
	}

	slides, err := parseSlides(reply.Text)
	if err != nil {
		return errorDeck(topic, "Slide generation returned malformed content. Please try again."), nil
	}
	if len(slides) > count {
		slides = slides[:count]
	}
	return &SlidesOutput{Topic: topic, Slides: slides}, nil
}

func clampSlides(n int) int {
	if n < minSlides {
		return minSlides
	}
	if n > maxSlides {
		return maxSlides
	}
	return n
}

func errorDeck(topic, message string) *SlidesOutput {
	return &SlidesOutput{
		Topic:  topic,
		Slides: []Slide{{Title: "Error", Content: message}},
	}
}

// parseSlides decodes the model's JSON array, tolerating a wrapping code
// fence.
func parseSlides(text string) ([]Slide, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	var slides []Slide
	if err := json.Unmarshal([]byte(text), &slides); err != nil {
		return nil, err
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("empty deck")
	}
	return slides, nil
}
