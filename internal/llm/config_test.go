package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
	assert.InDelta(t, 0.4, config.Temperature, 0.001)
	assert.Equal(t, int32(2048), config.MaxOutputTokens)
}

func TestGetModel_FallsBackToStandard(t *testing.T) {
	config := &Config{Models: map[ModelTier]string{TierStandard: "standard-model"}}

	assert.Equal(t, "standard-model", config.GetModel(TierLite))
	assert.Equal(t, "standard-model", config.GetModel("unknown"))
}

func TestGetModel_EmptyConfig(t *testing.T) {
	config := &Config{Models: map[ModelTier]string{}}
	assert.Equal(t, "", config.GetModel(TierLite))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	next := config.WithModel(TierLite, "custom-model")

	// Original should be unchanged
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "custom-model", next.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", next.GetModel(TierStandard))
	assert.Equal(t, config.Temperature, next.Temperature)

	// Empty override keeps the default
	assert.Equal(t, "gemini-2.5-flash", config.WithModel(TierStandard, "").GetModel(TierStandard))
}
