package loaders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// JSONLoader はJSONドキュメントを取り込むローダー
//
// トップレベルが配列の場合は要素ごとに1チャンク、オブジェクトの場合は
// ドキュメント全体で1チャンクとなる。各チャンクの本文は安定した
// キー順で文字列化される
type JSONLoader struct {
	raw    []byte
	source string
}

// JSONLoaderOption は JSONLoader のオプション設定
type JSONLoaderOption func(*JSONLoader)

// WithJSONSource はメタデータに記録するソース名を設定する
func WithJSONSource(source string) JSONLoaderOption {
	return func(l *JSONLoader) {
		l.source = source
	}
}

// NewJSONLoader は新しい JSONLoader を作成する
func NewJSONLoader(raw []byte, opts ...JSONLoaderOption) *JSONLoader {
	l := &JSONLoader{
		raw:    raw,
		source: "json",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init はJSONが解析可能であることを検証する
func (l *JSONLoader) Init(ctx context.Context) error {
	var value any
	if err := json.Unmarshal(l.raw, &value); err != nil {
		return fmt.Errorf("failed to parse JSON document: %w", err)
	}
	return nil
}

// UniqueID はコンテンツのハッシュに基づくローダーIDを返す
func (l *JSONLoader) UniqueID() string {
	return "JsonLoader_" + contentHash(string(l.raw))
}

// Chunks はドキュメント要素ごとのチャンクストリームを返す
func (l *JSONLoader) Chunks(ctx context.Context) (rag.ChunkStream, error) {
	var value any
	if err := json.Unmarshal(l.raw, &value); err != nil {
		return nil, fmt.Errorf("failed to parse JSON document: %w", err)
	}

	var elements []any
	if array, ok := value.([]any); ok {
		elements = array
	} else {
		elements = []any{value}
	}

	chunks := make([]rag.Chunk, 0, len(elements))
	for i, element := range elements {
		chunks = append(chunks, rag.Chunk{
			PageContent: stringifyJSONValue(element),
			Metadata: map[string]any{
				"source":      l.source,
				"type":        "JsonLoader",
				"recordIndex": i,
			},
		})
	}
	return rag.StreamOf(chunks...), nil
}

// stringifyJSONValue は値を検索しやすい平文へ変換する
// オブジェクトは「key: value」の列としてキー順に展開する
func stringifyJSONValue(value any) string {
	obj, ok := value.(map[string]any)
	if !ok {
		return fmt.Sprint(value)
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := ""
	for i, key := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s: %s", key, stringifyJSONValue(obj[key]))
	}
	return out
}

// インターフェース実装の確認
var _ rag.Loader = (*JSONLoader)(nil)
