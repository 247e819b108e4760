package container

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/embed-rag/internal/core/rag"
	"github.com/jinford/embed-rag/internal/platform/config"
)

type stubModel struct{}

func (stubModel) Init(ctx context.Context) error {
	return nil
}

func (stubModel) Generate(ctx context.Context, req rag.GenerateRequest) (string, error) {
	return "stub answer", nil
}

func (stubModel) GenerateStream(ctx context.Context, req rag.GenerateRequest) (<-chan rag.StreamEvent, error) {
	ch := make(chan rag.StreamEvent)
	close(ch)
	return ch, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Dimensions() int {
	return 3
}

func (stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func testRegistries() *Registries {
	regs := DefaultRegistries()
	regs.Models.Register("stub", func(cfg config.ModelConfig) (rag.Model, error) {
		return stubModel{}, nil
	})
	regs.Embedders.Register("stub", func(cfg config.EmbeddingConfig) (rag.Embedder, error) {
		return stubEmbedder{}, nil
	})
	return regs
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWithRegistriesBuildsApplication(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Provider = "stub"
	cfg.Embedding.Provider = "stub"
	cfg.Loaders = []config.LoaderConfig{
		{Type: "text", Content: "some ingested content", Source: "test"},
	}

	cont, err := NewWithRegistries(context.Background(), discardLogger(), cfg, testRegistries())
	require.NoError(t, err)
	t.Cleanup(cont.Close)

	count, err := cont.App.EmbeddingsCount(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	loaders := cont.App.Loaders()
	assert.Len(t, loaders, 1)
}

func TestNewWithRegistriesUnknownModelProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Provider = "no-such-provider"

	_, err := NewWithRegistries(context.Background(), discardLogger(), cfg, testRegistries())
	assert.Error(t, err)
}

func TestNewWithRegistriesUnknownLoaderType(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Provider = "stub"
	cfg.Embedding.Provider = "stub"
	cfg.Loaders = []config.LoaderConfig{{Type: "carrier-pigeon"}}

	_, err := NewWithRegistries(context.Background(), discardLogger(), cfg, testRegistries())
	assert.Error(t, err)
}

func TestDefaultRegistriesIncludeBuiltinProviders(t *testing.T) {
	regs := DefaultRegistries()

	assert.Contains(t, regs.Stores.Names(), "mongodb")
	assert.Contains(t, regs.Stores.Names(), "pgvector")
	assert.Contains(t, regs.Stores.Names(), "memory")
	assert.Contains(t, regs.Caches.Names(), "redis")
	assert.Contains(t, regs.Loaders.Names(), "kafka")
}
