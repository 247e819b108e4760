package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimensions())
}

func TestNewEmbedderDefaults(t *testing.T) {
	embedder := NewEmbedder("dummy-key")

	assert.Equal(t, DefaultEmbeddingModel, embedder.ModelName())
	assert.Equal(t, DefaultEmbeddingDimension, embedder.Dimensions())
}

func TestNewChatModelRequiresAPIKey(t *testing.T) {
	_, err := NewChatModel("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewChatModelOptionsOverrideDefaults(t *testing.T) {
	model, err := NewChatModel("dummy-key",
		WithChatModel("custom-model"),
		WithTemperature(0.7),
	)
	assert.NoError(t, err)
	assert.Equal(t, "custom-model", model.ModelName())
}
