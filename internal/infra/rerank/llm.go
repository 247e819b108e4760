// Package rerank は検索候補の再順位付けを行うリランカー実装を提供する
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jinford/embed-rag/internal/core/rag"
)

const rerankInstructions = `You are a relevance judge. Given a query and a numbered list of documents, score how relevant each document is to the query on a scale from 0.0 to 1.0.
Respond with a JSON array of objects, one per document, each with an integer "index" and a float "score". Do not include any other text.`

// LLMReranker は言語モデルに候補の関連度を採点させるリランカー
//
// 候補全体を1回のモデル呼び出しで採点するため、候補数が多いと
// プロンプトが長くなる。採点結果に含まれない候補は元のスコアを保持する
type LLMReranker struct {
	model  rag.Model
	logger *slog.Logger
}

// Option は LLMReranker のオプション設定
type Option func(*LLMReranker)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(r *LLMReranker) {
		r.logger = logger
	}
}

// NewLLMReranker は新しい LLMReranker を作成する
func NewLLMReranker(model rag.Model, opts ...Option) *LLMReranker {
	r := &LLMReranker{
		model:  model,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReRankDocuments は候補をモデルの採点スコアで並べ替えて返す
// モデル応答の解析に失敗した場合は候補を元の順序のまま返す
func (r *LLMReranker) ReRankDocuments(ctx context.Context, query string, candidates []rag.ExtractedChunk) ([]rag.ExtractedChunk, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	raw, err := r.model.Generate(ctx, rag.GenerateRequest{
		System: rerankInstructions,
		Query:  buildRerankPrompt(query, candidates),
	})
	if err != nil {
		return nil, fmt.Errorf("rerank model call failed: %w", err)
	}

	scores, err := parseScores(raw, len(candidates))
	if err != nil {
		r.logger.Warn("リランク応答の解析に失敗しました。元の順序を維持します", "error", err)
		return candidates, nil
	}

	reranked := make([]rag.ExtractedChunk, len(candidates))
	copy(reranked, candidates)
	for i := range reranked {
		if score, ok := scores[i]; ok {
			reranked[i].Score = score
		}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked, nil
}

func buildRerankPrompt(query string, candidates []rag.ExtractedChunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nDocuments:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, c.PageContent)
	}
	return b.String()
}

// parseScores はモデル応答からインデックスごとの採点を取り出す
// 範囲外のインデックスは無視する
func parseScores(raw string, count int) (map[int]float64, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in rerank response")
	}

	var entries []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %v", err)
	}

	scores := make(map[int]float64, len(entries))
	for _, entry := range entries {
		if entry.Index < 0 || entry.Index >= count {
			continue
		}
		scores[entry.Index] = entry.Score
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("rerank response contains no usable scores")
	}
	return scores, nil
}

// インターフェース実装の確認
var _ rag.Reranker = (*LLMReranker)(nil)
