package loaders

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// contentHash はコンテンツの内容から決定的な短いハッシュを生成する
// 同一コンテンツの再取り込みが同じローダーIDへ解決されるようにする
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum[:8])
}

// TextLoader は文字列コンテンツをそのまま取り込むローダー
type TextLoader struct {
	content  string
	source   string
	splitter *RecursiveCharacterSplitter
}

// TextLoaderOption は TextLoader のオプション設定
type TextLoaderOption func(*TextLoader)

// WithTextSource はメタデータに記録するソース名を設定する
func WithTextSource(source string) TextLoaderOption {
	return func(l *TextLoader) {
		l.source = source
	}
}

// WithTextSplitter は分割器を差し替える
func WithTextSplitter(splitter *RecursiveCharacterSplitter) TextLoaderOption {
	return func(l *TextLoader) {
		l.splitter = splitter
	}
}

// NewTextLoader は新しい TextLoader を作成する
func NewTextLoader(content string, opts ...TextLoaderOption) *TextLoader {
	l := &TextLoader{
		content:  content,
		source:   "text",
		splitter: NewSplitter(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init は実装上必要な初期化を行わない
func (l *TextLoader) Init(ctx context.Context) error {
	return nil
}

// UniqueID はコンテンツのハッシュに基づくローダーIDを返す
func (l *TextLoader) UniqueID() string {
	return "TextLoader_" + contentHash(l.content)
}

// Chunks は分割済みチャンクのストリームを返す
func (l *TextLoader) Chunks(ctx context.Context) (rag.ChunkStream, error) {
	parts := l.splitter.Split(l.content)

	chunks := make([]rag.Chunk, 0, len(parts))
	for _, part := range parts {
		chunks = append(chunks, rag.Chunk{
			PageContent: rag.CleanString(part),
			Metadata: map[string]any{
				"source": l.source,
				"type":   "TextLoader",
			},
		})
	}
	return rag.StreamOf(chunks...), nil
}

// インターフェース実装の確認
var _ rag.Loader = (*TextLoader)(nil)
