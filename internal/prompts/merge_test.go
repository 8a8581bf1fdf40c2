package prompts_test

import (
	"testing"

	"github.com/daryltucker/llm-pipeline/internal/config"
	"github.com/daryltucker/llm-pipeline/internal/prompts"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestMerge_OptionsPromptWins(t *testing.T) {
	m := config.Model{Options: map[string]any{"a": 1, "b": 2}}
	p := config.Prompt{Options: map[string]any{"b": 3, "c": 4}}

	got := prompts.Merge(m, p)

	want := map[string]any{"a": 1, "b": 3, "c": 4}
	if diff := cmp.Diff(want, got.Options); diff != "" {
		t.Errorf("merged options mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	m := config.Model{Options: map[string]any{"a": 1}}
	p := config.Prompt{Options: map[string]any{"a": 2}}

	_ = prompts.Merge(m, p)

	assert.Equal(t, map[string]any{"a": 1}, m.Options)
	assert.Equal(t, map[string]any{"a": 2}, p.Options)
}

func TestMerge_SystemAndTemperature(t *testing.T) {
	m := config.Model{System: ptr("model system"), Temperature: ptr(0.7)}

	t.Run("model values when prompt unset", func(t *testing.T) {
		got := prompts.Merge(m, config.Prompt{})
		require.NotNil(t, got.System)
		assert.Equal(t, "model system", *got.System)
		require.NotNil(t, got.Temperature)
		assert.InDelta(t, 0.7, *got.Temperature, 1e-9)
	})

	t.Run("prompt values win", func(t *testing.T) {
		got := prompts.Merge(m, config.Prompt{System: ptr("prompt system"), Temperature: ptr(0.1)})
		assert.Equal(t, "prompt system", *got.System)
		assert.InDelta(t, 0.1, *got.Temperature, 1e-9)
	})

	t.Run("explicit empty system overrides", func(t *testing.T) {
		got := prompts.Merge(m, config.Prompt{System: ptr("")})
		require.NotNil(t, got.System)
		assert.Equal(t, "", *got.System)
	})

	t.Run("nothing set anywhere", func(t *testing.T) {
		got := prompts.Merge(config.Model{}, config.Prompt{})
		assert.Nil(t, got.System)
		assert.Nil(t, got.Temperature)
		assert.Empty(t, got.Options)
	})
}
