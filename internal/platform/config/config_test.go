package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
model:
  provider: openai
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.VectorStore.Provider)
	assert.Equal(t, 7, cfg.Search.ResultCount)
	assert.Equal(t, 500, cfg.Search.BatchSize)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_MONGO_URI", "mongodb://secret-host:27017")

	path := writeConfig(t, `
vector_store:
  provider: mongodb
  connection_string: ${TEST_MONGO_URI}
  database: rag
  collection: chunks
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://secret-host:27017", cfg.VectorStore.ConnectionString)
}

func TestLoadParsesLoadersAndAggregates(t *testing.T) {
	path := writeConfig(t, `
loaders:
  - type: text
    content: hello world
    source: greeting
  - type: kafka
    brokers: [localhost:9092]
    topic: updates
aggregates:
  - name: books
    connection_string: mongodb://localhost:27017
    database: library
    collection: books
    query_template: '[{"$match": {"genre": "${genre}"}}]'
    schema:
      genre: the genre mentioned in the query
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	require.Len(t, cfg.Loaders, 2)
	assert.Equal(t, "text", cfg.Loaders[0].Type)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Loaders[1].Brokers)

	require.Len(t, cfg.Aggregates, 1)
	assert.Equal(t, "books", cfg.Aggregates[0].Name)
	assert.Contains(t, cfg.Aggregates[0].Schema, "genre")
}

func TestExpandEnvKeepsUnsetPlaceholders(t *testing.T) {
	template := `[{"$match": {"genre": "${genre}"}}]`
	assert.Equal(t, template, expandEnv(template))
}

func TestValidateRejectsLoaderWithoutType(t *testing.T) {
	path := writeConfig(t, `
loaders:
  - content: orphan
`)

	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestValidateRejectsAggregateWithoutTemplate(t *testing.T) {
	path := writeConfig(t, `
aggregates:
  - name: books
`)

	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}
