// Package mongodb は MongoDB Atlas をベクトルストア・取り込みキャッシュ・
// 補助データベースとして使用するアダプタを提供する
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jinford/embed-rag/internal/core/rag"
)

const (
	// DefaultVectorIndexName はベクトル検索インデックスのデフォルト名
	DefaultVectorIndexName = "vector_index"
	// DefaultTextIndexName は全文検索インデックスのデフォルト名
	DefaultTextIndexName = "text_index"
	// DefaultEmbeddingKey はベクトルを格納するフィールド名
	DefaultEmbeddingKey = "embedding"
	// DefaultTextKey はチャンク本文を格納するフィールド名
	DefaultTextKey = "text"
	// DefaultNumCandidates は$vectorSearchの候補数
	DefaultNumCandidates = 100
	// DefaultMinScore は類似検索結果の下限スコア（これ以下は除外）
	DefaultMinScore = 0.1

	rrfRankConstant = 60
)

// Store は MongoDB Atlas の $vectorSearch / $search を使用したベクトルストア
type Store struct {
	connectionString string
	dbName           string
	collectionName   string
	embeddingKey     string
	textKey          string
	indexName        string
	textIndexName    string
	numCandidates    int
	minScore         float64

	client     *mongo.Client
	collection *mongo.Collection
}

// StoreOption は Store のオプション設定
type StoreOption func(*Store)

// WithEmbeddingKey はベクトルフィールド名を上書きする
func WithEmbeddingKey(key string) StoreOption {
	return func(s *Store) {
		s.embeddingKey = key
	}
}

// WithTextKey は本文フィールド名を上書きする
func WithTextKey(key string) StoreOption {
	return func(s *Store) {
		s.textKey = key
	}
}

// WithVectorIndexName はベクトルインデックス名を上書きする
func WithVectorIndexName(name string) StoreOption {
	return func(s *Store) {
		s.indexName = name
	}
}

// WithTextIndexName は全文検索インデックス名を上書きする
func WithTextIndexName(name string) StoreOption {
	return func(s *Store) {
		s.textIndexName = name
	}
}

// WithNumCandidates は$vectorSearchの候補数を上書きする
func WithNumCandidates(n int) StoreOption {
	return func(s *Store) {
		s.numCandidates = n
	}
}

// WithMinScore は類似検索の下限スコアを上書きする
func WithMinScore(score float64) StoreOption {
	return func(s *Store) {
		s.minScore = score
	}
}

// NewStore は新しい Store を作成する。接続は Init まで行われない
func NewStore(connectionString, dbName, collectionName string, opts ...StoreOption) *Store {
	s := &Store{
		connectionString: connectionString,
		dbName:           dbName,
		collectionName:   collectionName,
		embeddingKey:     DefaultEmbeddingKey,
		textKey:          DefaultTextKey,
		indexName:        DefaultVectorIndexName,
		textIndexName:    DefaultTextIndexName,
		numCandidates:    DefaultNumCandidates,
		minScore:         DefaultMinScore,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init はデータベースへ接続し、コレクションハンドルを設定する
func (s *Store) Init(ctx context.Context, dimensions int) error {
	client, err := mongo.Connect(options.Client().ApplyURI(s.connectionString))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s.client = client
	s.collection = client.Database(s.dbName).Collection(s.collectionName)
	return nil
}

// Close は接続を切断する
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// InsertChunks はチャンクをコレクションへ一括挿入する
func (s *Store) InsertChunks(ctx context.Context, chunks []rag.InsertableChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	docs := make([]any, len(chunks))
	for i, chunk := range chunks {
		docs[i] = bson.M{
			"chunkIndex":   chunk.ID,
			"loaderId":     chunk.LoaderID,
			s.textKey:      chunk.PageContent,
			s.embeddingKey: chunk.Vector,
			"metadata":     chunk.Metadata,
			"sourceName":   chunk.Metadata["originalSource"],
			"url":          chunk.Metadata["source"],
		}
	}

	result, err := s.collection.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunks: %w", err)
	}
	return len(result.InsertedIDs), nil
}

// SimilaritySearch は$vectorSearchで上位k件を取得する
// 下限スコア以下（同値を含む）の結果はパイプライン内で除外される
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]rag.ExtractedChunk, error) {
	pipeline := mongo.Pipeline{
		s.vectorSearchStage(vector, k),
		{{Key: "$project", Value: bson.M{
			"_id":      0,
			"score":    bson.M{"$meta": "vectorSearchScore"},
			s.textKey:  1,
			"metadata": 1,
		}}},
		{{Key: "$match", Value: bson.M{"score": bson.M{"$gt": s.minScore}}}},
	}

	return s.runSearch(ctx, pipeline)
}

// HybridSearch はベクトル検索と全文検索をReciprocal Rank Fusionで融合する
// 融合は集約パイプライン内で行われ、重み付きRRFスコアの降順で上位k件を返す
func (s *Store) HybridSearch(ctx context.Context, textQuery string, vector []float32, k int, vectorWeight, fullTextWeight float64) ([]rag.ExtractedChunk, error) {
	rankToScore := func(field string, weight float64) bson.M {
		return bson.M{
			"$multiply": bson.A{
				weight,
				bson.M{"$divide": bson.A{1.0, bson.M{"$add": bson.A{"$" + field, rrfRankConstant}}}},
			},
		}
	}

	pipeline := mongo.Pipeline{
		s.vectorSearchStage(vector, k),
		{{Key: "$group", Value: bson.M{"_id": nil, "docs": bson.M{"$push": "$$ROOT"}}}},
		{{Key: "$unwind", Value: bson.M{"path": "$docs", "includeArrayIndex": "rank"}}},
		{{Key: "$addFields", Value: bson.M{
			"_id":      "$docs._id",
			"vs_score": rankToScore("rank", vectorWeight),
		}}},
		{{Key: "$unionWith", Value: bson.M{
			"coll": s.collectionName,
			"pipeline": bson.A{
				bson.M{"$search": bson.M{
					"index": s.textIndexName,
					"text":  bson.M{"query": textQuery, "path": s.textKey},
				}},
				bson.M{"$limit": k},
				bson.M{"$group": bson.M{"_id": nil, "docs": bson.M{"$push": "$$ROOT"}}},
				bson.M{"$unwind": bson.M{"path": "$docs", "includeArrayIndex": "rank"}},
				bson.M{"$addFields": bson.M{
					"_id":       "$docs._id",
					"fts_score": rankToScore("rank", fullTextWeight),
				}},
			},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":       "$_id",
			"docs":      bson.M{"$first": "$docs"},
			"vs_score":  bson.M{"$max": "$vs_score"},
			"fts_score": bson.M{"$max": "$fts_score"},
		}}},
		{{Key: "$addFields", Value: bson.M{
			"docs.vs_score":  bson.M{"$ifNull": bson.A{"$vs_score", 0}},
			"docs.fts_score": bson.M{"$ifNull": bson.A{"$fts_score", 0}},
		}}},
		{{Key: "$addFields", Value: bson.M{
			"docs.score": bson.M{"$add": bson.A{"$docs.vs_score", "$docs.fts_score"}},
		}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$docs"}}},
		{{Key: "$sort", Value: bson.M{"score": -1}}},
		{{Key: "$limit", Value: k}},
	}

	return s.runSearch(ctx, pipeline)
}

func (s *Store) vectorSearchStage(vector []float32, k int) bson.D {
	return bson.D{{Key: "$vectorSearch", Value: bson.M{
		"index":         s.indexName,
		"path":          s.embeddingKey,
		"queryVector":   vector,
		"numCandidates": s.numCandidates,
		"limit":         k,
	}}}
}

func (s *Store) runSearch(ctx context.Context, pipeline mongo.Pipeline) ([]rag.ExtractedChunk, error) {
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []searchResult
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	chunks := make([]rag.ExtractedChunk, 0, len(docs))
	for _, doc := range docs {
		chunks = append(chunks, rag.ExtractedChunk{
			Score:       doc.Score,
			VSScore:     doc.VSScore,
			FTSScore:    doc.FTSScore,
			PageContent: doc.Text,
			Metadata:    doc.Metadata,
		})
	}
	return chunks, nil
}

type searchResult struct {
	Score    float64        `bson:"score"`
	VSScore  float64        `bson:"vs_score"`
	FTSScore float64        `bson:"fts_score"`
	Text     string         `bson:"text"`
	Metadata map[string]any `bson:"metadata"`
}

// VectorCount はコレクション内のベクトルレコード数を返す
func (s *Store) VectorCount(ctx context.Context) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return count, nil
}

// DocsCount はコレクション内のドキュメント数の概算値を返す
func (s *Store) DocsCount(ctx context.Context) (int64, error) {
	count, err := s.collection.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate document count: %w", err)
	}
	return count, nil
}

// DeleteKeys は指定ローダーIDの全チャンクを削除する
// 1件も削除されなかった場合はfalseを返す
func (s *Store) DeleteKeys(ctx context.Context, loaderID string) (bool, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"loaderId": loaderID})
	if err != nil {
		return false, fmt.Errorf("failed to delete chunks for loader %s: %w", loaderID, err)
	}
	return result.DeletedCount > 0, nil
}

// Reset はコレクション内の全ドキュメントを削除する
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.collection.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("failed to reset collection: %w", err)
	}
	return nil
}

// CreateVectorIndex はAtlas Vector Searchインデックスを作成する
func (s *Store) CreateVectorIndex(ctx context.Context, dimensions int, similarity string) error {
	definition := bson.M{
		"fields": bson.A{
			bson.M{
				"type":          "vector",
				"numDimensions": dimensions,
				"path":          s.embeddingKey,
				"similarity":    similarity,
			},
		},
	}

	_, err := s.collection.SearchIndexes().CreateOne(ctx, mongo.SearchIndexModel{
		Definition: definition,
		Options:    options.SearchIndexes().SetName(s.indexName).SetType("vectorSearch"),
	})
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

// CreateTextIndex はAtlas Searchの全文検索インデックスを作成する
func (s *Store) CreateTextIndex(ctx context.Context) error {
	definition := bson.M{
		"mappings": bson.M{
			"dynamic": false,
			"fields": bson.M{
				s.textKey: bson.A{bson.M{"type": "string"}},
			},
		},
	}

	_, err := s.collection.SearchIndexes().CreateOne(ctx, mongo.SearchIndexModel{
		Definition: definition,
		Options:    options.SearchIndexes().SetName(s.textIndexName).SetType("search"),
	})
	if err != nil {
		return fmt.Errorf("failed to create text index: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var _ rag.VectorStore = (*Store)(nil)
