package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jinford/embed-rag/internal/core/conversation"
)

// searchOverfetch は検索時に上積みして取得する候補数
// リランカーとカットオフが低品質な候補を捨てても上位k件が枯れないようにする
const searchOverfetch = 10

// getEmbeddings はクエリを埋め込み、候補取得 → リランク → カットオフ →
// スコア降順ソート → 上位k件の切り詰めまでを行う
func (a *Application) getEmbeddings(ctx context.Context, cleanQuery string) ([]ExtractedChunk, error) {
	queryVector, err := a.embedder.EmbedQuery(ctx, cleanQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := a.vectorStore.SimilaritySearch(ctx, queryVector, a.searchResultCount+searchOverfetch)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	if a.reranker != nil {
		reranked, err := a.reranker.ReRankDocuments(ctx, cleanQuery, results)
		if err != nil {
			return nil, fmt.Errorf("rerank failed: %w", err)
		}
		results = reranked
	}

	// カットオフは厳密な大なり比較（score <= cutOff は除外）
	filtered := results[:0]
	for _, r := range results {
		if r.Score > a.relevanceCutOff {
			filtered = append(filtered, r)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})

	if len(filtered) > a.searchResultCount {
		filtered = filtered[:a.searchResultCount]
	}

	return filtered, nil
}

// GetContext はクエリに関連するコンテキストチャンクを返す
// 同一PageContentのチャンクは後勝ちで1件に畳み込まれる
func (a *Application) GetContext(ctx context.Context, query string) ([]ExtractedChunk, error) {
	cleanQuery := CleanString(query)

	rawContext, err := a.getEmbeddings(ctx, cleanQuery)
	if err != nil {
		return nil, err
	}

	// 重複排除: 位置は初出順、値は最後に出現したもの
	index := make(map[string]int, len(rawContext))
	deduped := make([]ExtractedChunk, 0, len(rawContext))
	for _, item := range rawContext {
		if pos, ok := index[item.PageContent]; ok {
			deduped[pos] = item
			continue
		}
		index[item.PageContent] = len(deduped)
		deduped = append(deduped, item)
	}

	return deduped, nil
}

// VectorQuery は未加工の類似検索結果を上位k件返す
// リランクもカットオフも適用しない、検索UI向けの低レベル操作
func (a *Application) VectorQuery(ctx context.Context, query string) ([]ExtractedChunk, error) {
	cleanQuery := CleanString(query)

	queryVector, err := a.embedder.EmbedQuery(ctx, cleanQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return a.vectorStore.SimilaritySearch(ctx, queryVector, a.searchResultCount)
}

// HybridQuery はベクトル検索と全文検索のランク融合結果を返す
// 重みが両方とも0の場合はデフォルト（ベクトル0.1 / 全文0.9）を適用する
func (a *Application) HybridQuery(ctx context.Context, query string, vectorWeight, fullTextWeight float64) ([]ExtractedChunk, error) {
	if vectorWeight == 0 && fullTextWeight == 0 {
		vectorWeight, fullTextWeight = 0.1, 0.9
	}

	cleanQuery := CleanString(query)

	queryVector, err := a.embedder.EmbedQuery(ctx, cleanQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return a.vectorStore.HybridSearch(ctx, query, queryVector, a.searchResultCount, vectorWeight, fullTextWeight)
}

// structuredQueryContext は構造化クエリ経由でコンテキストドキュメントを取得する
func (a *Application) structuredQueryContext(ctx context.Context, cleanQuery, lookupKey string) ([]map[string]any, error) {
	entry, ok := a.dbLookup[lookupKey]
	if !ok {
		return nil, fmt.Errorf("%w: unknown aggregate database %q", ErrNoStructuredQuery, lookupKey)
	}

	pipeline, err := entry.operator.Run(ctx, cleanQuery)
	if err != nil {
		return nil, err
	}

	docs, err := entry.runner.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate query failed for %q: %w", lookupKey, err)
	}
	return docs, nil
}

// Query はコンテキスト検索とモデル呼び出しを合成した質問応答を実行する
// conversationIDが空の場合は"default"が使用される
func (a *Application) Query(ctx context.Context, userQuery string, conversationID string) (QueryResult, error) {
	if conversationID == "" {
		conversationID = conversation.DefaultConversationID
	}

	contextChunks, sources, err := a.retrieveContext(ctx, userQuery)
	if err != nil {
		return QueryResult{}, err
	}
	contextChunks = a.clipContext(contextChunks)

	history, err := a.conversations.Get(ctx, conversationID)
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to load conversation history: %w", err)
	}
	a.logger.Debug("会話履歴を取得", "conversationId", conversationID, "entries", len(history))

	result, err := a.model.Generate(ctx, GenerateRequest{
		System:  a.queryTemplate,
		Query:   userQuery,
		Context: contextChunks,
		History: history,
	})
	if err != nil {
		return QueryResult{}, fmt.Errorf("model query failed: %w", err)
	}

	if err := a.appendConversation(ctx, conversationID, userQuery, contextChunks, result); err != nil {
		return QueryResult{}, err
	}

	return QueryResult{Result: result, Sources: sources}, nil
}

// QueryStream はQueryと同じ検索パスでモデルのストリーミング応答を返す
// ストリーミング応答は会話履歴に追記されない
func (a *Application) QueryStream(ctx context.Context, userQuery string, conversationID string) (<-chan StreamEvent, []string, error) {
	if conversationID == "" {
		conversationID = conversation.DefaultConversationID
	}

	contextChunks, sources, err := a.retrieveContext(ctx, userQuery)
	if err != nil {
		return nil, nil, err
	}
	contextChunks = a.clipContext(contextChunks)

	history, err := a.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	events, err := a.model.GenerateStream(ctx, GenerateRequest{
		System:  a.queryTemplate,
		Query:   userQuery,
		Context: contextChunks,
		History: history,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("model stream query failed: %w", err)
	}
	return events, sources, nil
}

// retrieveContext は構成に応じた検索パスでコンテキストとソース一覧を導出する
// ベクトルストア構成 → 類似検索、補助データベース構成 → 構造化クエリ、
// どちらもなければコンテキストなしでモデルのみ呼び出される
func (a *Application) retrieveContext(ctx context.Context, userQuery string) ([]Chunk, []string, error) {
	switch {
	case a.vectorStore != nil:
		extracted, err := a.GetContext(ctx, userQuery)
		if err != nil {
			return nil, nil, err
		}

		chunks := make([]Chunk, 0, len(extracted))
		for _, e := range extracted {
			chunks = append(chunks, Chunk{PageContent: e.PageContent, Metadata: e.Metadata})
		}
		return chunks, uniqueSources(extracted), nil

	case len(a.dbLookup) > 0:
		docs, err := a.structuredQueryContext(ctx, CleanString(userQuery), a.defaultLookup)
		if err != nil {
			if errors.Is(err, ErrNoStructuredQuery) {
				a.logger.Warn("構造化クエリを生成できませんでした。コンテキストなしで回答します", "error", err)
				return nil, nil, nil
			}
			return nil, nil, err
		}

		chunks := make([]Chunk, 0, len(docs))
		sources := make([]string, 0, len(docs))
		seen := make(map[string]struct{}, len(docs))
		for _, doc := range docs {
			encoded, err := json.Marshal(doc)
			if err != nil {
				continue
			}
			s := string(encoded)
			chunks = append(chunks, Chunk{PageContent: s, Metadata: map[string]any{"source": a.defaultLookup}})
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				sources = append(sources, s)
			}
		}
		return chunks, sources, nil

	default:
		return nil, nil, nil
	}
}

// appendConversation は問い合わせ1回分の履歴エントリを追記する
func (a *Application) appendConversation(ctx context.Context, conversationID, userQuery string, contextChunks []Chunk, result string) error {
	contents := make([]string, 0, len(contextChunks))
	for _, c := range contextChunks {
		contents = append(contents, c.PageContent)
	}

	err := a.conversations.Append(ctx, conversationID,
		conversation.Entry{Message: userQuery, Sender: conversation.SenderHuman},
		conversation.Entry{Message: "Old context: " + strings.Join(contents, "; "), Sender: conversation.SenderSystem},
		conversation.Entry{Message: result, Sender: conversation.SenderAI},
	)
	if err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}

// clipContext はコンテキストをトークン上限内に切り詰める
// TokenCounter未設定時は1トークン≒4文字の概算で代用する
func (a *Application) clipContext(chunks []Chunk) []Chunk {
	if a.contextTokenBudget <= 0 {
		return chunks
	}

	count := func(text string) int {
		if a.tokenCounter != nil {
			return a.tokenCounter.CountTokens(text)
		}
		return len(text) / 4
	}

	total := 0
	for i, c := range chunks {
		total += count(c.PageContent)
		if total > a.contextTokenBudget {
			a.logger.Debug("コンテキストをトークン上限で切り詰め", "kept", i, "dropped", len(chunks)-i)
			return chunks[:i]
		}
	}
	return chunks
}

// uniqueSources はコンテキストチャンクのmetadata.sourceを初出順で重複排除する
func uniqueSources(chunks []ExtractedChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	sources := make([]string, 0, len(chunks))
	for _, c := range chunks {
		v, ok := c.Metadata["source"]
		if !ok {
			continue
		}
		s := fmt.Sprint(v)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		sources = append(sources, s)
	}
	return sources
}
