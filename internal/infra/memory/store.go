// Package memory はプロセス内メモリのみで動作するベクトルストアと
// キャッシュを提供する。小規模データとテスト用途を想定している
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/jinford/embed-rag/internal/core/rag"
)

type storedChunk struct {
	id          string
	loaderID    string
	pageContent string
	vector      []float32
	metadata    map[string]any
}

// Store はブルートフォース探索のインメモリベクトルストア
type Store struct {
	mu     sync.RWMutex
	chunks []storedChunk
}

// NewStore は新しい Store を作成する
func NewStore() *Store {
	return &Store{}
}

// Init は実装上必要な初期化を行わない
func (s *Store) Init(ctx context.Context, dimensions int) error {
	return nil
}

// InsertChunks はチャンクを保存する。同一IDの再挿入は上書きとなる
func (s *Store) InsertChunks(ctx context.Context, chunks []rag.InsertableChunk) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		stored := storedChunk{
			id:          chunk.ID,
			loaderID:    chunk.LoaderID,
			pageContent: chunk.PageContent,
			vector:      chunk.Vector,
			metadata:    chunk.Metadata,
		}

		replaced := false
		for i, existing := range s.chunks {
			if existing.id == chunk.ID {
				s.chunks[i] = stored
				replaced = true
				break
			}
		}
		if !replaced {
			s.chunks = append(s.chunks, stored)
		}
	}
	return len(chunks), nil
}

// SimilaritySearch はコサイン類似度の降順で上位k件を返す
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]rag.ExtractedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]rag.ExtractedChunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		results = append(results, rag.ExtractedChunk{
			Score:       cosineSimilarity(vector, chunk.vector),
			PageContent: chunk.pageContent,
			Metadata:    chunk.metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// fullTextSearch はクエリ語の一致数をスコアとした素朴な全文検索を行う
func (s *Store) fullTextSearch(textQuery string, k int) []rag.ExtractedChunk {
	terms := strings.Fields(strings.ToLower(textQuery))

	var results []rag.ExtractedChunk
	for _, chunk := range s.chunks {
		content := strings.ToLower(chunk.pageContent)

		matched := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}

		results = append(results, rag.ExtractedChunk{
			Score:       float64(matched) / float64(len(terms)),
			PageContent: chunk.pageContent,
			Metadata:    chunk.metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// HybridSearch はベクトル検索と全文検索の結果を
// Reciprocal Rank Fusionで融合し、上位k件を返す
func (s *Store) HybridSearch(ctx context.Context, textQuery string, vector []float32, k int, vectorWeight, fullTextWeight float64) ([]rag.ExtractedChunk, error) {
	vectorResults, err := s.SimilaritySearch(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	textResults := s.fullTextSearch(textQuery, k)
	s.mu.RUnlock()

	return rag.ReciprocalRankFusion(vectorResults, textResults, k, vectorWeight, fullTextWeight), nil
}

// VectorCount は保存されているベクトルレコード数を返す
func (s *Store) VectorCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chunks)), nil
}

// DocsCount は保存されているドキュメント数を返す
func (s *Store) DocsCount(ctx context.Context) (int64, error) {
	return s.VectorCount(ctx)
}

// DeleteKeys は指定ローダーIDの全チャンクを削除する
func (s *Store) DeleteKeys(ctx context.Context, loaderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0]
	deleted := false
	for _, chunk := range s.chunks {
		if chunk.loaderID == loaderID {
			deleted = true
			continue
		}
		kept = append(kept, chunk)
	}
	s.chunks = kept
	return deleted, nil
}

// Reset は全チャンクを削除する
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	return nil
}

// CreateVectorIndex はインメモリ実装では何も行わない
func (s *Store) CreateVectorIndex(ctx context.Context, dimensions int, similarity string) error {
	return nil
}

// CreateTextIndex はインメモリ実装では何も行わない
func (s *Store) CreateTextIndex(ctx context.Context) error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// インターフェース実装の確認
var _ rag.VectorStore = (*Store)(nil)
