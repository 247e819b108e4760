package loaders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/embed-rag/internal/core/rag"
)

func collect(t *testing.T, stream rag.ChunkStream) []rag.Chunk {
	t.Helper()

	var chunks []rag.Chunk
	for sc := range stream {
		require.NoError(t, sc.Err)
		chunks = append(chunks, sc.Chunk)
	}
	return chunks
}

func TestTextLoaderProducesCleanedChunks(t *testing.T) {
	ctx := context.Background()
	loader := NewTextLoader("hello   world", WithTextSource("greeting"))
	require.NoError(t, loader.Init(ctx))

	stream, err := loader.Chunks(ctx)
	require.NoError(t, err)

	chunks := collect(t, stream)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].PageContent)
	assert.Equal(t, "greeting", chunks[0].Metadata["source"])
	assert.Equal(t, "TextLoader", chunks[0].Metadata["type"])
}

func TestTextLoaderUniqueIDIsContentDerived(t *testing.T) {
	a := NewTextLoader("same content")
	b := NewTextLoader("same content")
	c := NewTextLoader("different content")

	assert.Equal(t, a.UniqueID(), b.UniqueID())
	assert.NotEqual(t, a.UniqueID(), c.UniqueID())
}

func TestJSONLoaderArrayProducesChunkPerElement(t *testing.T) {
	ctx := context.Background()
	loader := NewJSONLoader([]byte(`[{"title": "A", "year": 1999}, {"title": "B"}]`))
	require.NoError(t, loader.Init(ctx))

	stream, err := loader.Chunks(ctx)
	require.NoError(t, err)

	chunks := collect(t, stream)
	require.Len(t, chunks, 2)
	assert.Equal(t, "title: A, year: 1999", chunks[0].PageContent)
	assert.Equal(t, "title: B", chunks[1].PageContent)
	assert.Equal(t, 0, chunks[0].Metadata["recordIndex"])
}

func TestJSONLoaderObjectProducesSingleChunk(t *testing.T) {
	ctx := context.Background()
	loader := NewJSONLoader([]byte(`{"name": "solo"}`))

	stream, err := loader.Chunks(ctx)
	require.NoError(t, err)

	chunks := collect(t, stream)
	require.Len(t, chunks, 1)
	assert.Equal(t, "name: solo", chunks[0].PageContent)
}

func TestJSONLoaderInitRejectsInvalidJSON(t *testing.T) {
	loader := NewJSONLoader([]byte(`{broken`))
	assert.Error(t, loader.Init(context.Background()))
}

func TestWebLoaderExtractsVisibleText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><script>ignored()</script></head><body><p>visible text</p></body></html>`))
	}))
	t.Cleanup(server.Close)

	ctx := context.Background()
	loader := NewWebLoader(server.URL)
	require.NoError(t, loader.Init(ctx))

	stream, err := loader.Chunks(ctx)
	require.NoError(t, err)

	chunks := collect(t, stream)
	require.Len(t, chunks, 1)
	assert.Equal(t, "visible text", chunks[0].PageContent)
	assert.Equal(t, server.URL, chunks[0].Metadata["source"])
}

func TestWebLoaderStreamsErrorOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	loader := NewWebLoader(server.URL)
	stream, err := loader.Chunks(context.Background())
	require.NoError(t, err)

	sc := <-stream
	assert.Error(t, sc.Err)
}

func TestParseSitemap(t *testing.T) {
	raw := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/a</loc><lastmod>2024-01-01</lastmod></url>
  <url><loc>https://example.com/b</loc></url>
  <url><loc></loc></url>
</urlset>`)

	urls, err := parseSitemap(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, urls)
}

func TestDirectoryLoaderSkipsIgnoredFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("kept content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.log"), []byte("log content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("secret.txt\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("secret content"), 0o644))

	ctx := context.Background()
	loader := NewDirectoryLoader(dir)
	require.NoError(t, loader.Init(ctx))

	stream, err := loader.Chunks(ctx)
	require.NoError(t, err)

	sources := make(map[string]bool)
	for _, chunk := range collect(t, stream) {
		sources[chunk.Metadata["source"].(string)] = true
	}

	assert.True(t, sources["keep.txt"])
	assert.False(t, sources["skip.log"])
	assert.False(t, sources["secret.txt"])
}

func TestKafkaLoaderInitValidatesConfig(t *testing.T) {
	ctx := context.Background()

	assert.Error(t, NewKafkaLoader(nil, "topic").Init(ctx))
	assert.Error(t, NewKafkaLoader([]string{"localhost:9092"}, "").Init(ctx))
	assert.NoError(t, NewKafkaLoader([]string{"localhost:9092"}, "topic").Init(ctx))
}

func TestKafkaLoaderInitialChunksAreEmpty(t *testing.T) {
	loader := NewKafkaLoader([]string{"localhost:9092"}, "topic")

	stream, err := loader.Chunks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, collect(t, stream))
}
