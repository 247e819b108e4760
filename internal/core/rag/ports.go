package rag

import (
	"context"

	"github.com/samber/mo"
)

// Embedder はテキストを固定次元のベクトルに変換する
type Embedder interface {
	// Dimensions はこのインスタンスが生成するベクトルの次元数を返す
	Dimensions() int
	// EmbedDocuments は複数テキストのEmbeddingを入力と同じ順序・同じ件数で返す
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery は検索クエリ1件のEmbeddingを返す
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Model は言語モデルの呼び出しインターフェース
type Model interface {
	// Init はモデルクライアントを初期化する（no-opでもよい）
	Init(ctx context.Context) error
	// Generate はシステムプロンプト・履歴・コンテキストから回答を生成する
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// GenerateStream はGenerateと同じ入力でトークンイベント列を返す
	GenerateStream(ctx context.Context, req GenerateRequest) (<-chan StreamEvent, error)
}

// Loader はコンテンツソースから遅延チャンク列を生成する
type Loader interface {
	// Init はソースへの接続を確立する。失敗した場合ローダーは登録されない
	Init(ctx context.Context) error
	// UniqueID はローダーの定義パラメータから導出される安定したIDを返す
	// このIDが再取り込み・削除の冪等キーとなる
	UniqueID() string
	// Chunks はチャンク列を返す。列の生成はctxのキャンセルで停止する
	Chunks(ctx context.Context) (ChunkStream, error)
}

// IncrementalLoader は追加データを逐次配信できるローダー
// Subscribeが返すチャネルには新着データごとに1つのChunkStreamが流れる
type IncrementalLoader interface {
	Loader
	// Subscribe は新着チャンク列の購読を開始する
	// 返却されるstop関数は購読を停止しチャネルをクローズする
	Subscribe(ctx context.Context) (streams <-chan ChunkStream, stop func() error, err error)
}

// VectorStore はチャンク・ベクトル・メタデータのレコードを永続化するストア
type VectorStore interface {
	// Init は必要なベクトル次元数を受け取りストアを初期化する
	Init(ctx context.Context, dimensions int) error
	// InsertChunks はチャンクを挿入し、挿入件数を返す
	InsertChunks(ctx context.Context, chunks []InsertableChunk) (int, error)
	// SimilaritySearch はベクトル類似検索の上位k件を返す
	SimilaritySearch(ctx context.Context, vector []float32, k int) ([]ExtractedChunk, error)
	// HybridSearch はベクトル検索と全文検索をランク融合した上位k件を返す
	// スコアは weight * 1/(rank+60) の相互ランク融合で算出される
	HybridSearch(ctx context.Context, text string, vector []float32, k int, vectorWeight, fullTextWeight float64) ([]ExtractedChunk, error)
	// VectorCount はベクトルレコード数を返す
	VectorCount(ctx context.Context) (int64, error)
	// DocsCount はドキュメント数の概算値を返す
	DocsCount(ctx context.Context) (int64, error)
	// CreateVectorIndex はベクトル検索インデックスを作成する
	CreateVectorIndex(ctx context.Context, dimensions int, similarity string) error
	// CreateTextIndex は全文検索インデックスを作成する
	CreateTextIndex(ctx context.Context) error
	// DeleteKeys は指定ローダーIDに紐づく全レコードを削除する
	DeleteKeys(ctx context.Context, loaderID string) (bool, error)
	// Reset はストアの全レコードを削除する
	Reset(ctx context.Context) error
}

// Cache は取り込み済みローダーの記録を保持する
type Cache interface {
	Init(ctx context.Context) error
	HasLoader(ctx context.Context, loaderID string) (bool, error)
	// GetLoader は取り込み記録を返す。記録がない場合はNoneを返す（エラーではない）
	GetLoader(ctx context.Context, loaderID string) (mo.Option[LoaderRecord], error)
	AddLoader(ctx context.Context, loaderID string, chunkCount int) error
	DeleteLoader(ctx context.Context, loaderID string) error
}

// Reranker は検索候補をクエリとの関連度で並べ替える
type Reranker interface {
	// ReRankDocuments は候補集合を再順位付けした新しい列を返す
	ReRankDocuments(ctx context.Context, query string, candidates []ExtractedChunk) ([]ExtractedChunk, error)
}

// AggregateRunner は構造化クエリ（集約パイプライン）を実行する補助データベース
type AggregateRunner interface {
	Init(ctx context.Context) error
	// Aggregate はJSON文字列のパイプラインを実行し結果ドキュメントを返す
	Aggregate(ctx context.Context, pipeline string) ([]map[string]any, error)
}

// StructuredQueryOperator は自然言語クエリからパラメータ化された構造化クエリを生成する
type StructuredQueryOperator interface {
	// Run は完全に置換済みのクエリ文字列を返す
	// 構造化クエリを生成できない場合はErrNoStructuredQueryを返す
	Run(ctx context.Context, userQuery string) (string, error)
}

// TokenCounter はテキストのトークン数を数える
// 未設定の場合エンジンは文字数ベースの概算にフォールバックする
type TokenCounter interface {
	CountTokens(text string) int
}
