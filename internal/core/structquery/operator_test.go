package structquery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jinford/embed-rag/internal/core/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModel は固定応答を返すテスト用のモデル実装
type stubModel struct {
	response string
	genErr   error
	calls    int
	lastReq  rag.GenerateRequest
}

func (m *stubModel) Init(ctx context.Context) error { return nil }

func (m *stubModel) Generate(ctx context.Context, req rag.GenerateRequest) (string, error) {
	m.calls++
	m.lastReq = req
	if m.genErr != nil {
		return "", m.genErr
	}
	return m.response, nil
}

func (m *stubModel) GenerateStream(ctx context.Context, req rag.GenerateRequest) (<-chan rag.StreamEvent, error) {
	ch := make(chan rag.StreamEvent)
	close(ch)
	return ch, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunStaticTemplateSkipsModel(t *testing.T) {
	model := &stubModel{}
	op := New(model, `[{"$match": {"genre": "fiction"}}]`, nil, WithLogger(testLogger()))

	query, err := op.Run(context.Background(), "any question")
	require.NoError(t, err)
	assert.Equal(t, `[{"$match": {"genre": "fiction"}}]`, query)

	// プレースホルダのないテンプレートではモデルは呼ばれない
	assert.Zero(t, model.calls)
}

func TestRunWithoutModel(t *testing.T) {
	op := New(nil, `[{"$match": {"genre": "${genre}"}}]`, map[string]string{"genre": "book genre"}, WithLogger(testLogger()))

	_, err := op.Run(context.Background(), "question")
	assert.ErrorIs(t, err, rag.ErrNoStructuredQuery)
}

func TestRunWithoutSchema(t *testing.T) {
	op := New(&stubModel{}, `[{"$match": {"genre": "${genre}"}}]`, nil, WithLogger(testLogger()))

	_, err := op.Run(context.Background(), "question")
	assert.ErrorIs(t, err, rag.ErrNoStructuredQuery)
}

func TestRunModelFailure(t *testing.T) {
	model := &stubModel{genErr: errors.New("model down")}
	op := New(model, `[{"$match": {"genre": "${genre}"}}]`, map[string]string{"genre": "book genre"}, WithLogger(testLogger()))

	_, err := op.Run(context.Background(), "question")
	assert.ErrorIs(t, err, rag.ErrNoStructuredQuery)
}

func TestRunUnparsableResponse(t *testing.T) {
	model := &stubModel{response: "I cannot answer that."}
	op := New(model, `[{"$match": {"genre": "${genre}"}}]`, map[string]string{"genre": "book genre"}, WithLogger(testLogger()))

	_, err := op.Run(context.Background(), "question")
	assert.ErrorIs(t, err, rag.ErrNoStructuredQuery)
}

func TestRunSubstitutesPlaceholders(t *testing.T) {
	model := &stubModel{response: `{"genre": "fiction", "year": 2020}`}
	op := New(model,
		`[{"$match": {"genre": "${genre}", "year": ${year}}}]`,
		map[string]string{"genre": "book genre", "year": "publication year"},
		WithLogger(testLogger()),
	)

	query, err := op.Run(context.Background(), "fiction books from 2020")
	require.NoError(t, err)
	assert.Equal(t, `[{"$match": {"genre": "fiction", "year": 2020}}]`, query)

	// フォーマット指示はシステムプロンプトに入り、クエリはそのまま渡される
	assert.Contains(t, model.lastReq.System, "Format instructions")
	assert.Equal(t, "fiction books from 2020", model.lastReq.Query)
}

func TestRunExtractsJSONFromNoisyResponse(t *testing.T) {
	model := &stubModel{response: "Here is the result:\n```json\n{\"genre\": \"mystery\"}\n```"}
	op := New(model, `[{"$match": {"genre": "${genre}"}}]`, map[string]string{"genre": "book genre"}, WithLogger(testLogger()))

	query, err := op.Run(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, `[{"$match": {"genre": "mystery"}}]`, query)
}

func TestRunRejectsUnknownField(t *testing.T) {
	// テンプレートに存在しないフィールドが返された場合は失敗する
	model := &stubModel{response: `{"author": "someone"}`}
	op := New(model, `[{"$match": {"genre": "${genre}"}}]`, map[string]string{"genre": "book genre"}, WithLogger(testLogger()))

	_, err := op.Run(context.Background(), "question")
	assert.ErrorIs(t, err, rag.ErrNoStructuredQuery)
}

func TestRunRejectsResidualPlaceholder(t *testing.T) {
	// 一部のプレースホルダが未置換のまま残った場合は失敗する
	model := &stubModel{response: `{"genre": "fiction"}`}
	op := New(model,
		`[{"$match": {"genre": "${genre}", "year": ${year}}}]`,
		map[string]string{"genre": "book genre", "year": "publication year"},
		WithLogger(testLogger()),
	)

	_, err := op.Run(context.Background(), "question")
	assert.ErrorIs(t, err, rag.ErrNoStructuredQuery)
}

func TestFormatInstructionsIsDeterministic(t *testing.T) {
	schema := map[string]string{
		"year":  "publication year",
		"genre": "book genre",
	}

	first := formatInstructions(schema)
	second := formatInstructions(schema)
	assert.Equal(t, first, second)

	// フィールドはキー名順に並ぶ
	assert.Less(t, strings.Index(first, `"genre"`), strings.Index(first, `"year"`))
}

func TestMemoryOperatorRecall(t *testing.T) {
	model := &stubModel{response: `{"genre": "fiction"}`}
	op := NewWithMemory(model, `[{"$match": {"genre": "${genre}"}}]`, map[string]string{"genre": "book genre"}, WithLogger(testLogger()))

	// Run前のRecallは失敗する
	_, err := op.Recall()
	assert.ErrorIs(t, err, rag.ErrNoStructuredQuery)

	query, err := op.Run(context.Background(), "question")
	require.NoError(t, err)

	recalled, err := op.Recall()
	require.NoError(t, err)
	assert.Equal(t, query, recalled)

	// Recallはモデルを再度呼ばない
	assert.Equal(t, 1, model.calls)
}
