package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlideGenerator(t *testing.T) {
	t.Parallel()

	deckJSON := `[
		{"title": "What is Rust", "content": "Rust is a systems language."},
		{"title": "Ownership", "content": "Memory safety without a garbage collector."},
		{"title": "Ecosystem", "content": "Cargo and crates.io."}
	]`

	t.Run("parses generated deck", func(t *testing.T) {
		t.Parallel()

		g := NewSlideGenerator(&stubModel{text: deckJSON}, "gpt-4o")
		out, err := g.Generate(context.Background(), "rust", 3)
		require.NoError(t, err)
		require.Len(t, out.Slides, 3)
		assert.Equal(t, "Ownership", out.Slides[1].Title)
	})

	t.Run("tolerates a code fence", func(t *testing.T) {
		t.Parallel()

		g := NewSlideGenerator(&stubModel{text: "```json\n" + deckJSON + "\n```"}, "gpt-4o")
		out, err := g.Generate(context.Background(), "rust", 3)
		require.NoError(t, err)
		assert.Len(t, out.Slides, 3)
	})

	t.Run("model failure yields an error slide", func(t *testing.T) {
		t.Parallel()

		g := NewSlideGenerator(&stubModel{err: errors.New("model down")}, "gpt-4o")
		out, err := g.Generate(context.Background(), "rust", 3)
		require.NoError(t, err)
		require.Len(t, out.Slides, 1)
		assert.Equal(t, "Error", out.Slides[0].Title)
	})

	t.Run("malformed deck yields an error slide", func(t *testing.T) {
		t.Parallel()

		g := NewSlideGenerator(&stubModel{text: "here are your slides!"}, "gpt-4o")
		out, err := g.Generate(context.Background(), "rust", 3)
		require.NoError(t, err)
		require.Len(t, out.Slides, 1)
		assert.Equal(t, "Error", out.Slides[0].Title)
	})

	t.Run("oversized deck is truncated to the requested count", func(t *testing.T) {
		t.Parallel()

		g := NewSlideGenerator(&stubModel{text: deckJSON}, "gpt-4o")
		out, err := g.Generate(context.Background(), "rust", 2)
		require.NoError(t, err)
		assert.Len(t, out.Slides, 2)
	})
}

func TestClampSlides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int
		want int
	}{
		{-3, 2},
		{0, 2},
		{1, 2},
		{2, 2},
		{7, 7},
		{10, 10},
		{11, 10},
		{100, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampSlides(tt.in), "clamp(%d)", tt.in)
	}
}
