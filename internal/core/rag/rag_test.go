package rag

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/require"
)

// stubEmbedder はテスト用のEmbedder実装
// ベクトルはテキスト長から決定的に生成する
type stubEmbedder struct {
	docCalls  [][]string
	queryVec  []float32
	queryErr  error
	docErr    error
	lastQuery string
}

func (e *stubEmbedder) Dimensions() int { return 3 }

func (e *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.docCalls = append(e.docCalls, append([]string(nil), texts...))
	if e.docErr != nil {
		return nil, e.docErr
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 0, 1}
	}
	return vectors, nil
}

func (e *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.lastQuery = text
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	if e.queryVec != nil {
		return e.queryVec, nil
	}
	return []float32{1, 0, 0}, nil
}

// stubModel はテスト用のModel実装
type stubModel struct {
	response string
	genErr   error
	calls    int
	lastReq  GenerateRequest
}

func (m *stubModel) Init(ctx context.Context) error { return nil }

func (m *stubModel) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	m.calls++
	m.lastReq = req
	if m.genErr != nil {
		return "", m.genErr
	}
	return m.response, nil
}

func (m *stubModel) GenerateStream(ctx context.Context, req GenerateRequest) (<-chan StreamEvent, error) {
	m.calls++
	m.lastReq = req
	if m.genErr != nil {
		return nil, m.genErr
	}
	ch := make(chan StreamEvent, len(m.response)+1)
	for _, r := range m.response {
		ch <- StreamEvent{Token: string(r)}
	}
	ch <- StreamEvent{Done: true}
	close(ch)
	return ch, nil
}

// stubStore はテスト用のVectorStore実装。呼び出し内容を記録する
type stubStore struct {
	mu                sync.Mutex
	insertCalls       [][]InsertableChunk
	insertErr         error
	similarityResults []ExtractedChunk
	hybridResults     []ExtractedChunk
	lastK             int
	lastHybridText    string
	lastVectorWeight  float64
	lastTextWeight    float64
	deletedKeys       []string
	deleteReturn      bool
	deleteErr         error
	resetCalls        int
}

func (s *stubStore) Init(ctx context.Context, dimensions int) error { return nil }

func (s *stubStore) InsertChunks(ctx context.Context, chunks []InsertableChunk) (int, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.mu.Lock()
	s.insertCalls = append(s.insertCalls, append([]InsertableChunk(nil), chunks...))
	s.mu.Unlock()
	return len(chunks), nil
}

// insertedCount は挿入済みチャンクの総数を返す。ゴルーチンからの挿入と併用できる
func (s *stubStore) insertedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, call := range s.insertCalls {
		total += len(call)
	}
	return total
}

func (s *stubStore) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]ExtractedChunk, error) {
	s.lastK = k
	return append([]ExtractedChunk(nil), s.similarityResults...), nil
}

func (s *stubStore) HybridSearch(ctx context.Context, text string, vector []float32, k int, vectorWeight, fullTextWeight float64) ([]ExtractedChunk, error) {
	s.lastK = k
	s.lastHybridText = text
	s.lastVectorWeight = vectorWeight
	s.lastTextWeight = fullTextWeight
	return append([]ExtractedChunk(nil), s.hybridResults...), nil
}

func (s *stubStore) VectorCount(ctx context.Context) (int64, error) {
	return int64(s.insertedCount()), nil
}

func (s *stubStore) DocsCount(ctx context.Context) (int64, error) { return s.VectorCount(ctx) }

func (s *stubStore) CreateVectorIndex(ctx context.Context, dimensions int, similarity string) error {
	return nil
}

func (s *stubStore) CreateTextIndex(ctx context.Context) error { return nil }

func (s *stubStore) DeleteKeys(ctx context.Context, loaderID string) (bool, error) {
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	s.deletedKeys = append(s.deletedKeys, loaderID)
	return s.deleteReturn, nil
}

func (s *stubStore) Reset(ctx context.Context) error {
	s.resetCalls++
	return nil
}

// stubCache はテスト用のCache実装
type stubCache struct {
	records     map[string]LoaderRecord
	addCalls    []LoaderRecord
	deleteCalls []string
}

func newStubCache() *stubCache {
	return &stubCache{records: make(map[string]LoaderRecord)}
}

func (c *stubCache) Init(ctx context.Context) error { return nil }

func (c *stubCache) HasLoader(ctx context.Context, loaderID string) (bool, error) {
	_, ok := c.records[loaderID]
	return ok, nil
}

func (c *stubCache) GetLoader(ctx context.Context, loaderID string) (mo.Option[LoaderRecord], error) {
	record, ok := c.records[loaderID]
	if !ok {
		return mo.None[LoaderRecord](), nil
	}
	return mo.Some(record), nil
}

func (c *stubCache) AddLoader(ctx context.Context, loaderID string, chunkCount int) error {
	record := LoaderRecord{LoaderID: loaderID, ChunkCount: chunkCount}
	c.records[loaderID] = record
	c.addCalls = append(c.addCalls, record)
	return nil
}

func (c *stubCache) DeleteLoader(ctx context.Context, loaderID string) error {
	delete(c.records, loaderID)
	c.deleteCalls = append(c.deleteCalls, loaderID)
	return nil
}

// staticLoader はメモリ上のチャンク列を返すテスト用ローダー
type staticLoader struct {
	id        string
	chunks    []Chunk
	initErr   error
	streamErr error
}

func (l *staticLoader) Init(ctx context.Context) error { return l.initErr }

func (l *staticLoader) UniqueID() string { return l.id }

func (l *staticLoader) Chunks(ctx context.Context) (ChunkStream, error) {
	if l.streamErr != nil {
		ch := make(chan StreamedChunk, 1)
		ch <- StreamedChunk{Err: l.streamErr}
		close(ch)
		return ch, nil
	}
	return StreamOf(l.chunks...), nil
}

// stubRunner はテスト用のAggregateRunner実装
type stubRunner struct {
	docs         []map[string]any
	aggregateErr error
	lastPipeline string
}

func (r *stubRunner) Init(ctx context.Context) error { return nil }

func (r *stubRunner) Aggregate(ctx context.Context, pipeline string) ([]map[string]any, error) {
	r.lastPipeline = pipeline
	if r.aggregateErr != nil {
		return nil, r.aggregateErr
	}
	return r.docs, nil
}

// stubOperator は固定クエリを返すテスト用のStructuredQueryOperator実装
type stubOperator struct {
	query  string
	runErr error
}

func (o *stubOperator) Run(ctx context.Context, userQuery string) (string, error) {
	if o.runErr != nil {
		return "", o.runErr
	}
	return o.query, nil
}

// reverseReranker は候補を逆順に並べ替えるテスト用リランカー
type reverseReranker struct{}

func (r *reverseReranker) ReRankDocuments(ctx context.Context, query string, candidates []ExtractedChunk) ([]ExtractedChunk, error) {
	out := make([]ExtractedChunk, len(candidates))
	for i, c := range candidates {
		out[len(candidates)-1-i] = c
	}
	return out, nil
}

// wordCounter は空白区切りの語数をトークン数とみなすテスト用カウンタ
type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApp はスタブ依存で構築したApplicationを返す
func newTestApp(t *testing.T, configure func(*Builder)) (*Application, *stubStore, *stubEmbedder, *stubModel) {
	t.Helper()

	store := &stubStore{}
	embedder := &stubEmbedder{}
	model := &stubModel{response: "generated answer"}

	builder := NewBuilder().
		SetModel(model).
		SetEmbedder(embedder).
		SetVectorStore(store).
		SetLogger(testLogger())
	if configure != nil {
		configure(builder)
	}

	app, err := builder.Build(context.Background())
	require.NoError(t, err)
	return app, store, embedder, model
}
