package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amacdonaldai/gen-bionic/internal/model"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"openai shorthand", "gpt-4o", "openai/gpt-4o"},
		{"openai mini shorthand", "gpt-4o-mini", "openai/gpt-4o-mini"},
		{"google shorthand", "gemini-2.0-flash", "googleai/gemini-2.0-flash"},
		{"qualified google name passes through", "googleai/gemini-2.0-flash", "googleai/gemini-2.0-flash"},
		{"qualified openai name passes through", "openai/gpt-4o", "openai/gpt-4o"},
		{"unknown falls back", "claude-sonnet", model.DefaultModel},
		{"empty falls back", "", model.DefaultModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, model.Resolve(tt.in))
		})
	}
}
