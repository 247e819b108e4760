// Package tokenizer はtiktokenによるトークン数カウントを提供する
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// DefaultEncoding はOpenAIの埋め込み・チャットモデルと互換のエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter はtiktokenエンコーディングでトークン数をカウントする
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter は指定エンコーディングの Counter を作成する
// encodingが空の場合はcl100k_baseを使用する
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %s: %w", encoding, err)
	}
	return &Counter{encoding: enc}, nil
}

// CountTokens はテキストのトークン数を返す
func (c *Counter) CountTokens(text string) int {
	if c.encoding == nil {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// インターフェース実装の確認
var _ rag.TokenCounter = (*Counter)(nil)
