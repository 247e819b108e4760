package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAggregateApp(t *testing.T, runner *stubRunner, operator *stubOperator, model *stubModel) *Application {
	t.Helper()

	app, err := NewBuilder().
		SetModel(model).
		SetAggregateDatabase("sales", runner, operator).
		SetLogger(testLogger()).
		Build(context.Background())
	require.NoError(t, err)
	return app
}

func TestQueryWithStructuredQueryContext(t *testing.T) {
	runner := &stubRunner{docs: []map[string]any{
		{"title": "alpha"},
		{"title": "beta"},
		{"title": "alpha"},
	}}
	operator := &stubOperator{query: `[{"$match": {"genre": "fiction"}}]`}
	model := &stubModel{response: "answer"}
	app := newAggregateApp(t, runner, operator, model)

	result, err := app.Query(context.Background(), "question", "")
	require.NoError(t, err)
	assert.Equal(t, "answer", result.Result)

	// オペレータが生成したパイプラインがそのまま実行される
	assert.Equal(t, `[{"$match": {"genre": "fiction"}}]`, runner.lastPipeline)

	// 結果ドキュメントはJSON化されてコンテキストになる
	require.Len(t, model.lastReq.Context, 3)
	assert.Equal(t, `{"title":"alpha"}`, model.lastReq.Context[0].PageContent)
	assert.Equal(t, "sales", model.lastReq.Context[0].Metadata["source"])

	// ソースは重複排除される
	assert.Equal(t, []string{`{"title":"alpha"}`, `{"title":"beta"}`}, result.Sources)
}

func TestQueryFallsBackWhenNoStructuredQuery(t *testing.T) {
	runner := &stubRunner{}
	operator := &stubOperator{runErr: fmt.Errorf("%w: schema not provided", ErrNoStructuredQuery)}
	model := &stubModel{response: "answer without context"}
	app := newAggregateApp(t, runner, operator, model)

	// 構造化クエリが生成できない場合はコンテキストなしでモデルが呼ばれる
	result, err := app.Query(context.Background(), "question", "")
	require.NoError(t, err)
	assert.Equal(t, "answer without context", result.Result)
	assert.Empty(t, result.Sources)
	assert.Empty(t, model.lastReq.Context)
}

func TestQueryPropagatesAggregateFailure(t *testing.T) {
	runner := &stubRunner{aggregateErr: errors.New("db down")}
	operator := &stubOperator{query: "[]"}
	model := &stubModel{}
	app := newAggregateApp(t, runner, operator, model)

	_, err := app.Query(context.Background(), "question", "")
	require.Error(t, err)
	assert.Zero(t, model.calls)
}
