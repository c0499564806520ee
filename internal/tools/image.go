package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const imageDescription = "Generate an image from a text description. Use when the user asks for a picture, illustration, or visual."

// ImageOutput is the persisted result of a generateImage invocation. The
// image travels base64-encoded so the payload replays byte for byte.
type ImageOutput struct {
	Prompt   string `json:"prompt"`
	MIMEType string `json:"mimeType"`
	B64      string `json:"b64"`
}

// ImageGenerator renders images through the OpenAI image API.
type ImageGenerator struct {
	client openai.Client
}

// ImageGeneratorConfig configures an ImageGenerator. BaseURL is
// overridable for tests.
type ImageGeneratorConfig struct {
	APIKey  string
	BaseURL string
}

// NewImageGenerator creates an ImageGenerator.
func NewImageGenerator(cfg ImageGeneratorConfig) (*ImageGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("tools: image generator requires an API key")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ImageGenerator{client: openai.NewClient(opts...)}, nil
}

// Definition returns the generateImage tool backed by this generator.
// There is no narration pass; the rendered image is the terminal view.
func (g *ImageGenerator) Definition() *Definition {
	return &Definition{
		Name:        "generateImage",
		Description: imageDescription,
		Schema:      MustSchema[GenerateImageInput](),
		Prepare: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in GenerateImageInput
			if err := json.Unmarshal(args, &in); err != nil {
				return "", err
			}
			return in.Prompt, nil
		},
		Meta: func(args json.RawMessage) string {
			var in GenerateImageInput
			_ = json.Unmarshal(args, &in)
			return in.Prompt
		},
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in GenerateImageInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return g.Generate(ctx, in.Prompt)
		},
	}
}

// Generate renders one 1024x1024 image for the prompt.
func (g *ImageGenerator) Generate(ctx context.Context, prompt string) (*ImageOutput, error) {
	res, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModelDallE3,
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		Size:           openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	if len(res.Data) == 0 || res.Data[0].B64JSON == "" {
		return nil, errors.New("generate image: empty response")
	}
	return &ImageOutput{Prompt: prompt, MIMEType: "image/png", B64: res.Data[0].B64JSON}, nil
}
