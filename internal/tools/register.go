package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/amacdonaldai/gen-bionic/internal/conversation"
	"github.com/amacdonaldai/gen-bionic/internal/model"
)

// RegistryConfig carries the dependencies the built-in tools need.
// Images is optional; without it the generateImage tool is not registered.
type RegistryConfig struct {
	Searcher  *WebSearcher
	Wikipedia *WikipediaClient
	Arxiv     *ArxivClient
	Images    *ImageGenerator
	Models    model.Client

	// ModelName selects the model for tools that run their own generation
	// passes (generateSlides, researchReport).
	ModelName string
}

// NewDefaultRegistry builds the registry holding the built-in tool set.
func NewDefaultRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Searcher == nil || cfg.Wikipedia == nil || cfg.Arxiv == nil {
		return nil, fmt.Errorf("tools: registry requires searcher, wikipedia, and arxiv clients")
	}
	if cfg.Models == nil {
		return nil, fmt.Errorf("tools: registry requires a model client")
	}

	searchDef := cfg.Searcher.Definition()
	searchDef.Prepare = searchSummary(cfg.Models, cfg.ModelName)

	defs := []*Definition{
		searchDef,
		cfg.Wikipedia.Definition(),
		cfg.Arxiv.Definition(),
		NewSlideGenerator(cfg.Models, cfg.ModelName).Definition(),
		NewResearcher(cfg.Searcher, cfg.Models, cfg.ModelName).Definition(),
	}
	if cfg.Images != nil {
		defs = append(defs, cfg.Images.Definition())
	}

	r := NewRegistry()
	for _, d := range defs {
		attachGenkitHook(d)
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// searchSummary reformulates the raw search query into a short loading
// caption through a cheap model pass. Any failure leaves the caption
// empty; the search itself always runs on the raw query.
func searchSummary(models model.Client, modelName string) func(context.Context, json.RawMessage) (string, error) {
	return func(ctx context.Context, args json.RawMessage) (string, error) {
		var in SearchWebInput
		if err := json.Unmarshal(args, &in); err != nil {
			return "", err
		}
		reply, err := models.Generate(ctx, model.Request{
			Model: modelName,
			Messages: []conversation.Message{conversation.NewUserMessage(conversation.TextPart(
				"Rephrase the following as a short search caption of at most eight words. Respond with the caption only.\n\n" + in.Query,
			))},
		})
		if err != nil || reply.Text == "" {
			return in.Query, nil
		}
		return strings.TrimSpace(reply.Text), nil
	}
}

// attachGenkitHook wires the definition's typed Genkit declaration so the
// model sees its parameter schema. The handler delegates to Execute; with
// tool requests returned to the caller it normally never runs, but stays
// functional for clients that resolve tools inline.
func attachGenkitHook(d *Definition) {
	switch d.Name {
	case "searchWeb":
		d.DefineGenkit = defineFor[SearchWebInput](d)
	case "generateImage":
		d.DefineGenkit = defineFor[GenerateImageInput](d)
	case "arxivApiCaller":
		d.DefineGenkit = defineFor[ArxivInput](d)
	case "wikipediaSearch":
		d.DefineGenkit = defineFor[WikipediaInput](d)
	case "generateSlides":
		d.DefineGenkit = defineFor[SlidesInput](d)
	case "researchReport":
		d.DefineGenkit = defineFor[ResearchInput](d)
	}
}

func defineFor[In any](d *Definition) func(g *genkit.Genkit) ai.Tool {
	return func(g *genkit.Genkit) ai.Tool {
		return genkit.DefineTool(
			g,
			d.Name,
			d.Description,
			func(toolCtx *ai.ToolContext, input In) (any, error) {
				raw, err := json.Marshal(input)
				if err != nil {
					return nil, err
				}
				return d.Execute(toolCtx.Context, raw)
			},
		)
	}
}
