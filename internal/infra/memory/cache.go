package memory

import (
	"context"
	"sync"

	"github.com/samber/mo"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// Cache はローダー取り込み記録をプロセス内メモリに保存する
type Cache struct {
	mu      sync.RWMutex
	records map[string]rag.LoaderRecord
}

// NewCache は新しい Cache を作成する
func NewCache() *Cache {
	return &Cache{records: make(map[string]rag.LoaderRecord)}
}

// Init は実装上必要な初期化を行わない
func (c *Cache) Init(ctx context.Context) error {
	return nil
}

// HasLoader はローダーの取り込み記録が存在するかを返す
func (c *Cache) HasLoader(ctx context.Context, loaderID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.records[loaderID]
	return ok, nil
}

// GetLoader はローダーの取り込み記録を返す。記録がない場合はNoneを返す
func (c *Cache) GetLoader(ctx context.Context, loaderID string) (mo.Option[rag.LoaderRecord], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, ok := c.records[loaderID]
	if !ok {
		return mo.None[rag.LoaderRecord](), nil
	}
	return mo.Some(record), nil
}

// AddLoader はローダーの取り込み記録を保存する
func (c *Cache) AddLoader(ctx context.Context, loaderID string, chunkCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records[loaderID] = rag.LoaderRecord{LoaderID: loaderID, ChunkCount: chunkCount}
	return nil
}

// DeleteLoader はローダーの取り込み記録を削除する
func (c *Cache) DeleteLoader(ctx context.Context, loaderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.records, loaderID)
	return nil
}

// インターフェース実装の確認
var _ rag.Cache = (*Cache)(nil)
