package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amacdonaldai/gen-bionic/internal/testutil"
)

func defaultRegistryConfig(models *testutil.ScriptedModel) RegistryConfig {
	return RegistryConfig{
		Searcher:  NewWebSearcher(WebSearcherConfig{}),
		Wikipedia: NewWikipediaClient(WikipediaClientConfig{}),
		Arxiv:     NewArxivClient(ArxivClientConfig{}),
		Models:    models,
		ModelName: "openai/gpt-4o",
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	t.Parallel()

	t.Run("without image generator", func(t *testing.T) {
		r, err := NewDefaultRegistry(defaultRegistryConfig(&testutil.ScriptedModel{}))
		require.NoError(t, err)

		names := make([]string, 0, 5)
		for _, d := range r.Decls() {
			names = append(names, d.Name)
		}
		assert.Equal(t, []string{"arxivApiCaller", "generateSlides", "researchReport", "searchWeb", "wikipediaSearch"}, names)
	})

	t.Run("with image generator", func(t *testing.T) {
		cfg := defaultRegistryConfig(&testutil.ScriptedModel{})
		images, err := NewImageGenerator(ImageGeneratorConfig{APIKey: "test-key"})
		require.NoError(t, err)
		cfg.Images = images

		r, err := NewDefaultRegistry(cfg)
		require.NoError(t, err)
		assert.Len(t, r.Decls(), 6)

		d, ok := r.Lookup("generateImage")
		require.True(t, ok)
		assert.NotNil(t, d.DefineGenkit)
	})

	t.Run("missing dependencies", func(t *testing.T) {
		_, err := NewDefaultRegistry(RegistryConfig{Models: &testutil.ScriptedModel{}})
		assert.Error(t, err)
	})
}

func TestSearchSummary(t *testing.T) {
	t.Parallel()

	args := json.RawMessage(`{"query":"what is the weather like in tokyo right now"}`)

	t.Run("reformulates through the model", func(t *testing.T) {
		models := &testutil.ScriptedModel{Rules: []testutil.ModelRule{
			{Match: "Rephrase", Text: "Tokyo weather now"},
		}}
		summary, err := searchSummary(models, "openai/gpt-4o")(context.Background(), args)
		require.NoError(t, err)
		assert.Equal(t, "Tokyo weather now", summary)
	})

	t.Run("falls back to the raw query", func(t *testing.T) {
		models := &testutil.ScriptedModel{Rules: []testutil.ModelRule{
			{Match: "Rephrase", Err: assert.AnError},
		}}
		summary, err := searchSummary(models, "openai/gpt-4o")(context.Background(), args)
		require.NoError(t, err)
		assert.Equal(t, "what is the weather like in tokyo right now", summary)
	})

	t.Run("rejects malformed arguments", func(t *testing.T) {
		_, err := searchSummary(&testutil.ScriptedModel{}, "openai/gpt-4o")(context.Background(), json.RawMessage(`{`))
		assert.Error(t, err)
	})
}
