package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequiresModel(t *testing.T) {
	_, err := NewBuilder().
		SetEmbedder(&stubEmbedder{}).
		SetVectorStore(&stubStore{}).
		SetLogger(testLogger()).
		Build(context.Background())
	assert.ErrorIs(t, err, ErrModelNotSet)
}

func TestBuildRequiresStoreOrAggregateDatabase(t *testing.T) {
	_, err := NewBuilder().
		SetModel(&stubModel{}).
		SetLogger(testLogger()).
		Build(context.Background())
	assert.ErrorIs(t, err, ErrStoreNotSet)
}

func TestBuildRequiresEmbedderWithVectorStore(t *testing.T) {
	_, err := NewBuilder().
		SetModel(&stubModel{}).
		SetVectorStore(&stubStore{}).
		SetLogger(testLogger()).
		Build(context.Background())
	assert.ErrorIs(t, err, ErrEmbedderNotSet)
}

func TestBuildWithAggregateDatabaseOnly(t *testing.T) {
	// 補助データベース構成ではベクトルストアもEmbeddingも不要
	app, err := NewBuilder().
		SetModel(&stubModel{response: "ok"}).
		SetAggregateDatabase("sales", &stubRunner{}, &stubOperator{query: "[]"}).
		SetLogger(testLogger()).
		Build(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, app)
}

func TestBuildIngestsPreRegisteredLoaders(t *testing.T) {
	store := &stubStore{}
	app, err := NewBuilder().
		SetModel(&stubModel{}).
		SetEmbedder(&stubEmbedder{}).
		SetVectorStore(store).
		AddLoader(&staticLoader{id: "loader-a", chunks: makeChunks(2)}).
		AddLoader(&staticLoader{id: "loader-a", chunks: makeChunks(2)}).
		AddLoader(&staticLoader{id: "loader-b", chunks: makeChunks(1)}).
		SetLogger(testLogger()).
		Build(context.Background())
	require.NoError(t, err)

	// 同一IDのローダーは先勝ちで重複排除される
	assert.Len(t, app.Loaders(), 2)
	require.Len(t, store.insertCalls, 2)
	assert.Len(t, store.insertCalls[0], 2)
	assert.Len(t, store.insertCalls[1], 1)
}

func TestBuildSkipsFailingLoader(t *testing.T) {
	store := &stubStore{}
	app, err := NewBuilder().
		SetModel(&stubModel{}).
		SetEmbedder(&stubEmbedder{}).
		SetVectorStore(store).
		AddLoader(&staticLoader{id: "broken", initErr: errors.New("unreachable")}).
		AddLoader(&staticLoader{id: "ok", chunks: makeChunks(1)}).
		SetLogger(testLogger()).
		Build(context.Background())

	// ソース取得系の失敗は構築全体を失敗させない
	require.NoError(t, err)
	assert.Len(t, app.Loaders(), 1)
}

func TestBuilderDefaults(t *testing.T) {
	b := NewBuilder()
	assert.Equal(t, DefaultInsertBatchSize, b.batchSize)
	assert.Equal(t, DefaultSearchResultCount, b.searchResultCount)
	assert.Equal(t, DefaultContextTokenBudget, b.contextTokenBudget)
	assert.Zero(t, b.relevanceCutOff)
	assert.NotNil(t, b.conversations)

	// 不正値は無視される
	b.SetBatchSize(0)
	b.SetContextTokenBudget(-1)
	assert.Equal(t, DefaultInsertBatchSize, b.batchSize)
	assert.Equal(t, DefaultContextTokenBudget, b.contextTokenBudget)
}
