package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// DefaultCacheCollection はローダー取り込み記録のデフォルトコレクション名
const DefaultCacheCollection = "loaders"

// Cache はローダー取り込み記録をMongoDBのコレクションに保存する
type Cache struct {
	connectionString string
	dbName           string
	collectionName   string

	client     *mongo.Client
	collection *mongo.Collection
}

// NewCache は新しい Cache を作成する。接続は Init まで行われない
func NewCache(connectionString, dbName, collectionName string) *Cache {
	if collectionName == "" {
		collectionName = DefaultCacheCollection
	}
	return &Cache{
		connectionString: connectionString,
		dbName:           dbName,
		collectionName:   collectionName,
	}
}

// Init はデータベースへ接続し、ローダーIDのユニークインデックスを作成する
func (c *Cache) Init(ctx context.Context) error {
	client, err := mongo.Connect(options.Client().ApplyURI(c.connectionString))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	c.client = client
	c.collection = client.Database(c.dbName).Collection(c.collectionName)

	_, err = c.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "loaderId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create loader index: %w", err)
	}
	return nil
}

// Close は接続を切断する
func (c *Cache) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}

// HasLoader はローダーの取り込み記録が存在するかを返す
func (c *Cache) HasLoader(ctx context.Context, loaderID string) (bool, error) {
	count, err := c.collection.CountDocuments(ctx, bson.M{"loaderId": loaderID})
	if err != nil {
		return false, fmt.Errorf("failed to check loader record: %w", err)
	}
	return count > 0, nil
}

// GetLoader はローダーの取り込み記録を返す。記録がない場合はNoneを返す
func (c *Cache) GetLoader(ctx context.Context, loaderID string) (mo.Option[rag.LoaderRecord], error) {
	var doc struct {
		LoaderID   string `bson:"loaderId"`
		ChunkCount int    `bson:"chunkCount"`
	}

	err := c.collection.FindOne(ctx, bson.M{"loaderId": loaderID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return mo.None[rag.LoaderRecord](), nil
		}
		return mo.None[rag.LoaderRecord](), fmt.Errorf("failed to read loader record: %w", err)
	}

	return mo.Some(rag.LoaderRecord{LoaderID: doc.LoaderID, ChunkCount: doc.ChunkCount}), nil
}

// AddLoader はローダーの取り込み記録をupsertする
func (c *Cache) AddLoader(ctx context.Context, loaderID string, chunkCount int) error {
	_, err := c.collection.UpdateOne(ctx,
		bson.M{"loaderId": loaderID},
		bson.M{"$set": bson.M{"loaderId": loaderID, "chunkCount": chunkCount}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to record loader: %w", err)
	}
	return nil
}

// DeleteLoader はローダーの取り込み記録を削除する
func (c *Cache) DeleteLoader(ctx context.Context, loaderID string) error {
	if _, err := c.collection.DeleteOne(ctx, bson.M{"loaderId": loaderID}); err != nil {
		return fmt.Errorf("failed to delete loader record: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var _ rag.Cache = (*Cache)(nil)
