package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// CRUD は任意のコレクションに対する補助データベース操作を提供する
// 構造化クエリオペレータが生成したJSON集約パイプラインの実行に使用される
type CRUD struct {
	connectionString string
	dbName           string
	collectionName   string

	client     *mongo.Client
	collection *mongo.Collection
}

// NewCRUD は新しい CRUD を作成する。接続は Init まで行われない
func NewCRUD(connectionString, dbName, collectionName string) *CRUD {
	return &CRUD{
		connectionString: connectionString,
		dbName:           dbName,
		collectionName:   collectionName,
	}
}

// Init はデータベースへ接続し、コレクションハンドルを設定する
func (c *CRUD) Init(ctx context.Context) error {
	client, err := mongo.Connect(options.Client().ApplyURI(c.connectionString))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	c.client = client
	c.collection = client.Database(c.dbName).Collection(c.collectionName)
	return nil
}

// Close は接続を切断する
func (c *CRUD) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}

// Aggregate はJSON文字列の集約パイプラインを実行し、結果ドキュメントを返す
func (c *CRUD) Aggregate(ctx context.Context, pipeline string) ([]map[string]any, error) {
	stages, err := parsePipeline(pipeline)
	if err != nil {
		return nil, err
	}

	cursor, err := c.collection.Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []map[string]any
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation results: %w", err)
	}
	return docs, nil
}

// parsePipeline はJSON配列の集約パイプラインをbson.Aへ変換する
// bsonの拡張JSONパーサはトップレベルにドキュメントを要求するため、
// 一度オブジェクトに包んでから取り出す
func parsePipeline(pipeline string) (bson.A, error) {
	wrapped := `{"pipeline": ` + pipeline + `}`

	var doc struct {
		Pipeline bson.A `bson:"pipeline"`
	}
	if err := bson.UnmarshalExtJSON([]byte(wrapped), false, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse aggregation pipeline: %w", err)
	}
	return doc.Pipeline, nil
}

// インターフェース実装の確認
var _ rag.AggregateRunner = (*CRUD)(nil)
