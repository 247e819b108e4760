// Package rediscache はローダー取り込み記録をRedisに保存するキャッシュを提供する
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/samber/mo"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// DefaultKeyPrefix はローダー記録キーのデフォルトプレフィックス
const DefaultKeyPrefix = "rag:loader:"

// Cache はRedisを使用したローダー取り込み記録のキャッシュ
type Cache struct {
	client    *redis.Client
	keyPrefix string
}

// Option は Cache のオプション設定
type Option func(*Cache)

// WithKeyPrefix はキープレフィックスを上書きする
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) {
		c.keyPrefix = prefix
	}
}

// New はRedisクライアントからCacheを作成する
func New(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromAddr は接続先アドレスからCacheを作成する
func NewFromAddr(addr, password string, db int, opts ...Option) *Cache {
	return New(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
}

type loaderRecord struct {
	LoaderID   string `json:"loaderId"`
	ChunkCount int    `json:"chunkCount"`
}

func (c *Cache) key(loaderID string) string {
	return c.keyPrefix + loaderID
}

// Init は接続を確認する
func (c *Cache) Init(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close は接続を切断する
func (c *Cache) Close() error {
	return c.client.Close()
}

// HasLoader はローダーの取り込み記録が存在するかを返す
func (c *Cache) HasLoader(ctx context.Context, loaderID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(loaderID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check loader record: %w", err)
	}
	return n > 0, nil
}

// GetLoader はローダーの取り込み記録を返す。記録がない場合はNoneを返す
func (c *Cache) GetLoader(ctx context.Context, loaderID string) (mo.Option[rag.LoaderRecord], error) {
	raw, err := c.client.Get(ctx, c.key(loaderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return mo.None[rag.LoaderRecord](), nil
		}
		return mo.None[rag.LoaderRecord](), fmt.Errorf("failed to read loader record: %w", err)
	}

	var record loaderRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return mo.None[rag.LoaderRecord](), fmt.Errorf("failed to decode loader record: %w", err)
	}
	return mo.Some(rag.LoaderRecord{LoaderID: record.LoaderID, ChunkCount: record.ChunkCount}), nil
}

// AddLoader はローダーの取り込み記録を保存する
func (c *Cache) AddLoader(ctx context.Context, loaderID string, chunkCount int) error {
	raw, err := json.Marshal(loaderRecord{LoaderID: loaderID, ChunkCount: chunkCount})
	if err != nil {
		return fmt.Errorf("failed to encode loader record: %w", err)
	}

	if err := c.client.Set(ctx, c.key(loaderID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to record loader: %w", err)
	}
	return nil
}

// DeleteLoader はローダーの取り込み記録を削除する
func (c *Cache) DeleteLoader(ctx context.Context, loaderID string) error {
	if err := c.client.Del(ctx, c.key(loaderID)).Err(); err != nil {
		return fmt.Errorf("failed to delete loader record: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var _ rag.Cache = (*Cache)(nil)
