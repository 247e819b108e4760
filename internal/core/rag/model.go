package rag

import (
	"github.com/jinford/embed-rag/internal/core/conversation"
)

// Chunk はローダーが生成するテキストとメタデータの単位
type Chunk struct {
	PageContent string
	Metadata    map[string]any
}

// FormattedChunk は取り込みパスの中で決定的なIDを割り当てられたChunk
// IDは "{ローダーID}_{連番}" 形式で、連番は1回のバッチロード内で0から単調増加する
type FormattedChunk struct {
	Chunk
	LoaderID string
	ID       string
}

// InsertableChunk は埋め込みベクトルを付与された永続化単位
type InsertableChunk struct {
	FormattedChunk
	Vector []float32
}

// ExtractedChunk はストアの検索が返す結果レコード
// VSScore / FTSScore はハイブリッド検索の結果にのみ設定される
type ExtractedChunk struct {
	Score       float64
	PageContent string
	Metadata    map[string]any
	VSScore     float64
	FTSScore    float64
}

// LoaderRecord はキャッシュが保持するローダーごとの取り込み記録
type LoaderRecord struct {
	LoaderID   string
	ChunkCount int
}

// AddLoaderResult はAddLoaderの実行結果
type AddLoaderResult struct {
	EntriesAdded int
	UniqueID     string
}

// QueryResult は質問応答の結果
type QueryResult struct {
	Result  string
	Sources []string
}

// StreamedChunk はChunkStream上を流れる1要素。ErrはChunk生成失敗を表す
type StreamedChunk struct {
	Chunk Chunk
	Err   error
}

// ChunkStream はローダーが生成する遅延チャンク列
// バッチローダーでは有限、ストリーミングローダーでは実質無限の列となる
type ChunkStream <-chan StreamedChunk

// StreamOf はメモリ上のチャンク列からChunkStreamを作成する
func StreamOf(chunks ...Chunk) ChunkStream {
	ch := make(chan StreamedChunk, len(chunks))
	for _, c := range chunks {
		ch <- StreamedChunk{Chunk: c}
	}
	close(ch)
	return ch
}

// GenerateRequest はモデル呼び出しの入力
// 会話履歴は呼び出し側（クエリエンジン）が明示的に渡す
type GenerateRequest struct {
	System  string
	Query   string
	Context []Chunk
	History []conversation.Entry
}

// StreamEvent はストリーミング応答のトークンイベント
type StreamEvent struct {
	Token string
	Err   error
	Done  bool
}
