// Package pgvector は PostgreSQL + pgvector 拡張をベクトルストアとして
// 使用するアダプタを提供する。全文検索はPostgreSQLのtsvectorを使用し、
// ハイブリッド検索の融合はアプリケーション側で行う
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// DefaultTableName はチャンクを格納するデフォルトテーブル名
const DefaultTableName = "rag_chunks"

// Store は PostgreSQL + pgvector を使用したベクトルストア
type Store struct {
	connectionString string
	tableName        string
	dimensions       int

	pool *pgxpool.Pool
}

// StoreOption は Store のオプション設定
type StoreOption func(*Store)

// WithTableName はテーブル名を上書きする
func WithTableName(name string) StoreOption {
	return func(s *Store) {
		s.tableName = name
	}
}

// NewStore は新しい Store を作成する。接続は Init まで行われない
func NewStore(connectionString string, opts ...StoreOption) *Store {
	s := &Store{
		connectionString: connectionString,
		tableName:        DefaultTableName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init は接続プールを作成し、拡張とテーブルを用意する
func (s *Store) Init(ctx context.Context, dimensions int) error {
	pool, err := pgxpool.New(ctx, s.connectionString)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	s.pool = pool
	s.dimensions = dimensions

	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			chunk_index TEXT PRIMARY KEY,
			loader_id   TEXT NOT NULL,
			content     TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			metadata    JSONB NOT NULL DEFAULT '{}'
		)`, s.tableName, dimensions)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.tableName, err)
	}

	return nil
}

// Close は接続プールを閉じる
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertChunks はチャンクをバッチでupsertする
// 同一チャンクIDの再挿入は上書きとなる
func (s *Store) InsertChunks(ctx context.Context, chunks []rag.InsertableChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (chunk_index, loader_id, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chunk_index) DO UPDATE
		SET loader_id = EXCLUDED.loader_id,
		    content = EXCLUDED.content,
		    embedding = EXCLUDED.embedding,
		    metadata = EXCLUDED.metadata`, s.tableName)

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to encode metadata for chunk %s: %w", chunk.ID, err)
		}
		batch.Queue(sql, chunk.ID, chunk.LoaderID, chunk.PageContent, pgvec.NewVector(chunk.Vector), metadata)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return inserted, fmt.Errorf("failed to insert chunk: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// SimilaritySearch はコサイン類似度の降順で上位k件を取得する
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]rag.ExtractedChunk, error) {
	sql := fmt.Sprintf(`
		SELECT content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, s.tableName)

	rows, err := s.pool.Query(ctx, sql, pgvec.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// fullTextSearch はtsvectorマッチの上位k件をts_rankスコア付きで取得する
func (s *Store) fullTextSearch(ctx context.Context, textQuery string, k int) ([]rag.ExtractedChunk, error) {
	sql := fmt.Sprintf(`
		SELECT content, metadata,
		       ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) AS score
		FROM %s
		WHERE to_tsvector('english', content) @@ plainto_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $2`, s.tableName)

	rows, err := s.pool.Query(ctx, sql, textQuery, k)
	if err != nil {
		return nil, fmt.Errorf("full text search failed: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// HybridSearch はベクトル検索と全文検索の結果を
// Reciprocal Rank Fusionで融合し、上位k件を返す
func (s *Store) HybridSearch(ctx context.Context, textQuery string, vector []float32, k int, vectorWeight, fullTextWeight float64) ([]rag.ExtractedChunk, error) {
	vectorResults, err := s.SimilaritySearch(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	textResults, err := s.fullTextSearch(ctx, textQuery, k)
	if err != nil {
		return nil, err
	}

	return rag.ReciprocalRankFusion(vectorResults, textResults, k, vectorWeight, fullTextWeight), nil
}

func scanChunks(rows pgx.Rows) ([]rag.ExtractedChunk, error) {
	var chunks []rag.ExtractedChunk
	for rows.Next() {
		var (
			content  string
			metadata map[string]any
			score    float64
		)
		if err := rows.Scan(&content, &metadata, &score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		chunks = append(chunks, rag.ExtractedChunk{
			Score:       score,
			PageContent: content,
			Metadata:    metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	return chunks, nil
}

// VectorCount はテーブル内のベクトルレコード数を返す
func (s *Store) VectorCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.tableName)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return count, nil
}

// DocsCount はプランナ統計に基づくドキュメント数の概算値を返す
func (s *Store) DocsCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(reltuples::bigint, 0) FROM pg_class WHERE relname = $1`,
		s.tableName,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate document count: %w", err)
	}
	if count < 0 {
		return s.VectorCount(ctx)
	}
	return count, nil
}

// DeleteKeys は指定ローダーIDの全チャンクを削除する
// 1件も削除されなかった場合はfalseを返す
func (s *Store) DeleteKeys(ctx context.Context, loaderID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE loader_id = $1`, s.tableName), loaderID)
	if err != nil {
		return false, fmt.Errorf("failed to delete chunks for loader %s: %w", loaderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Reset はテーブル内の全レコードを削除する
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, s.tableName)); err != nil {
		return fmt.Errorf("failed to reset table %s: %w", s.tableName, err)
	}
	return nil
}

// CreateVectorIndex はHNSWインデックスを作成する
// 類似度関数はcosine / euclidean / dotProductをサポートする
func (s *Store) CreateVectorIndex(ctx context.Context, dimensions int, similarity string) error {
	var opclass string
	switch similarity {
	case "", "cosine":
		opclass = "vector_cosine_ops"
	case "euclidean":
		opclass = "vector_l2_ops"
	case "dotProduct":
		opclass = "vector_ip_ops"
	default:
		return fmt.Errorf("unsupported similarity function: %s", similarity)
	}

	sql := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding %s)`,
		s.tableName, s.tableName, opclass,
	)
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

// CreateTextIndex は全文検索用のGINインデックスを作成する
func (s *Store) CreateTextIndex(ctx context.Context) error {
	sql := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_content_fts_idx ON %s USING gin (to_tsvector('english', content))`,
		s.tableName, s.tableName,
	)
	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to create text index: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var _ rag.VectorStore = (*Store)(nil)
