package backend_test

import (
	"testing"

	"github.com/daryltucker/llm-pipeline/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGenerationConfig_Defaults(t *testing.T) {
	gen, ignored, err := backend.BuildGenerationConfig(nil, nil, nil)
	require.NoError(t, err)

	assert.Empty(t, ignored)
	assert.Equal(t, 512, gen.MaxNewTokens)
	assert.InDelta(t, 1.0, gen.Temperature, 1e-9)
	assert.Equal(t, 50, gen.TopK)
	assert.False(t, gen.DoSample)
	assert.Nil(t, gen.Seed)
	assert.Empty(t, gen.Overridden)
	assert.Len(t, gen.Defaulted(), 7)
}

func TestBuildGenerationConfig_Layering(t *testing.T) {
	// generation_config.json values arrive as float64 from encoding/json
	modelDefaults := map[string]any{
		"do_sample":      true,
		"temperature":    0.6,
		"top_p":          0.9,
		"max_new_tokens": float64(256),
		"bos_token_id":   float64(1),
	}
	temp := 0.2
	options := map[string]any{
		"top_p":       0.5,
		"num_beams":   4,
		"stop_tokens": "x",
	}

	gen, ignored, err := backend.BuildGenerationConfig(modelDefaults, &temp, options)
	require.NoError(t, err)

	assert.InDelta(t, 0.2, gen.Temperature, 1e-9, "temperature beats model default")
	assert.InDelta(t, 0.5, gen.TopP, 1e-9, "option beats model default")
	assert.Equal(t, 256, gen.MaxNewTokens, "model default beats library default")
	assert.True(t, gen.DoSample)
	assert.Equal(t, 50, gen.TopK, "library default")

	assert.Equal(t, []string{"num_beams", "stop_tokens"}, ignored)
	assert.Equal(t, []string{"temperature", "top_p"}, gen.Overridden)
	assert.NotContains(t, gen.Defaulted(), "top_p")
	assert.Contains(t, gen.Defaulted(), "max_new_tokens")
}

func TestBuildGenerationConfig_OptionBeatsTemperature(t *testing.T) {
	temp := 0.2
	gen, _, err := backend.BuildGenerationConfig(nil, &temp, map[string]any{"temperature": 0.9})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, gen.Temperature, 1e-9)
}

func TestBuildGenerationConfig_Seed(t *testing.T) {
	gen, ignored, err := backend.BuildGenerationConfig(nil, nil, map[string]any{"seed": int64(42)})
	require.NoError(t, err)

	require.NotNil(t, gen.Seed)
	assert.EqualValues(t, 42, *gen.Seed)
	assert.Empty(t, ignored, "seed is not reported as unknown")
	assert.Empty(t, gen.Overridden)
}

func TestBuildGenerationConfig_BadType(t *testing.T) {
	_, _, err := backend.BuildGenerationConfig(nil, nil, map[string]any{"top_k": "many"})
	assert.Error(t, err)

	_, _, err = backend.BuildGenerationConfig(nil, nil, map[string]any{"max_new_tokens": 1.5})
	assert.Error(t, err)
}
