// Package structquery は自然言語クエリから構造化クエリ（集約パイプライン）を
// 生成するオペレータを提供する。LLMにスキーマ記述付きのフォーマット指示を与え、
// 抽出されたフィールド値でテンプレート内の ${param} プレースホルダを置換する
package structquery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jinford/embed-rag/internal/core/rag"
)

const placeholderPrefix = "${"

// Operator はテンプレートとスキーマから構造化クエリを生成する
type Operator struct {
	model    rag.Model
	template string
	schema   map[string]string
	logger   *slog.Logger
}

// Option はOperatorのオプション設定
type Option func(*Operator)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(o *Operator) {
		o.logger = logger
	}
}

// New は新しいOperatorを作成する
// schemaは抽出するフィールド名とその説明のマップ
func New(model rag.Model, template string, schema map[string]string, opts ...Option) *Operator {
	op := &Operator{
		model:    model,
		template: template,
		schema:   schema,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(op)
	}
	return op
}

// Run はテンプレートのプレースホルダをLLM抽出値で置換したクエリを返す
//
// プレースホルダを含まないテンプレートは静的クエリとしてそのまま返す
// （モデル呼び出しなし）。スキーマに宣言されたフィールドがテンプレートに
// 存在しない場合、または置換後にプレースホルダが残った場合は、部分的に
// 置換された不正なクエリを返す代わりにErrNoStructuredQueryを返す
func (o *Operator) Run(ctx context.Context, userQuery string) (string, error) {
	// 条件の評価順はこのまま維持すること
	if !strings.Contains(o.template, placeholderPrefix) {
		o.logger.Debug("テンプレートはプレースホルダを含まない静的クエリ")
		return o.template, nil
	}

	if o.model == nil {
		return "", fmt.Errorf("%w: model not configured", rag.ErrNoStructuredQuery)
	}
	if len(o.schema) == 0 {
		return "", fmt.Errorf("%w: schema not provided", rag.ErrNoStructuredQuery)
	}

	raw, err := o.model.Generate(ctx, rag.GenerateRequest{
		System: formatInstructions(o.schema),
		Query:  userQuery,
	})
	if err != nil {
		return "", fmt.Errorf("%w: model extraction failed: %v", rag.ErrNoStructuredQuery, err)
	}

	fields, err := parseFields(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrNoStructuredQuery, err)
	}

	query := o.template
	for key, value := range fields {
		placeholder := placeholderPrefix + key + "}"
		if !strings.Contains(query, placeholder) {
			return "", fmt.Errorf("%w: field %q not found in query template", rag.ErrNoStructuredQuery, key)
		}
		query = strings.ReplaceAll(query, placeholder, stringify(value))
	}

	if strings.Contains(query, placeholderPrefix) {
		return "", fmt.Errorf("%w: unsubstituted placeholder remains in query template", rag.ErrNoStructuredQuery)
	}

	return query, nil
}

var _ rag.StructuredQueryOperator = (*Operator)(nil)

// MemoryOperator は最後に完全置換されたクエリを保持するOperatorの変種
// Recallはモデルを呼び出さずに前回の置換結果を返す
type MemoryOperator struct {
	*Operator

	mu   sync.Mutex
	last string
}

// NewWithMemory はMemoryOperatorを作成する
func NewWithMemory(model rag.Model, template string, schema map[string]string, opts ...Option) *MemoryOperator {
	return &MemoryOperator{Operator: New(model, template, schema, opts...)}
}

func (m *MemoryOperator) Run(ctx context.Context, userQuery string) (string, error) {
	query, err := m.Operator.Run(ctx, userQuery)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.last = query
	m.mu.Unlock()
	return query, nil
}

// Recall は前回Runが返した完全置換済みクエリを返す
func (m *MemoryOperator) Recall() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last == "" {
		return "", fmt.Errorf("%w: no previous query retained", rag.ErrNoStructuredQuery)
	}
	return m.last, nil
}

var _ rag.StructuredQueryOperator = (*MemoryOperator)(nil)

// formatInstructions はスキーマからフォーマット指示プロンプトを組み立てる
// フィールドはキー名順に並べ、出力を決定的にする
func formatInstructions(schema map[string]string) string {
	keys := make([]string, 0, len(schema))
	for key := range schema {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Answer the question as per format instructions.\n")
	b.WriteString("Format instructions: Respond with a JSON object containing exactly the following fields, with string values. Do not include any other text.\n")
	for _, key := range keys {
		fmt.Fprintf(&b, "- %q: %s\n", key, schema[key])
	}
	return b.String()
}

// parseFields はモデル応答からJSONオブジェクトを取り出す
// コードフェンスや前後の説明文が混ざっていても最初のオブジェクトを抽出する
func parseFields(raw string) (map[string]any, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %v", err)
	}
	return fields, nil
}

// stringify は抽出値をテンプレート埋め込み用の文字列へ変換する
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	}
}
