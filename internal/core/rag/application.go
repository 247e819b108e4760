package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jinford/embed-rag/internal/core/conversation"
)

// DefaultSimilarityFunction はベクトルインデックスのデフォルト類似度関数
const DefaultSimilarityFunction = "cosine"

// Application はRAGフレームワークの合成ルート
// 取り込みエンジンとクエリエンジンの公開操作を提供し、
// 登録済みローダー集合とキャッシュハンドルを占有的に所有する
type Application struct {
	queryTemplate      string
	searchResultCount  int
	relevanceCutOff    float64
	batchSize          int
	contextTokenBudget int

	embedder      Embedder
	model         Model
	vectorStore   VectorStore
	dbLookup      map[string]aggregateEntry
	defaultLookup string
	cache         Cache
	reranker      Reranker
	conversations conversation.Store
	tokenCounter  TokenCounter
	logger        *slog.Logger

	// 登録済みローダーと購読停止関数。複数ゴルーチンから触れるためmutexで保護する
	mu      sync.Mutex
	loaders []Loader
	stops   map[string]func() error

	pendingLoaders []Loader
}

// newApplication はビルダーの設定からApplicationを組み立てる
// 依存の検証のみを行い、I/Oは発生しない
func newApplication(b *Builder) (*Application, error) {
	if b.model == nil {
		return nil, ErrModelNotSet
	}
	if b.vectorStore == nil && len(b.dbLookup) == 0 {
		return nil, ErrStoreNotSet
	}
	if b.embedder == nil && b.vectorStore != nil {
		return nil, ErrEmbedderNotSet
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Application{
		queryTemplate:      CleanString(b.queryTemplate),
		searchResultCount:  b.searchResultCount,
		relevanceCutOff:    b.relevanceCutOff,
		batchSize:          b.batchSize,
		contextTokenBudget: b.contextTokenBudget,
		embedder:           b.embedder,
		model:              b.model,
		vectorStore:        b.vectorStore,
		dbLookup:           b.dbLookup,
		defaultLookup:      b.defaultLookup,
		cache:              b.cache,
		reranker:           b.reranker,
		conversations:      b.conversations,
		tokenCounter:       b.tokenCounter,
		logger:             logger,
		stops:              make(map[string]func() error),
		pendingLoaders:     b.loaders,
	}, nil
}

// init は初期化シーケンスを実行する
// モデル → ストア → 補助データベース → キャッシュ → 事前ローダーの順
func (a *Application) init(ctx context.Context) error {
	if err := a.model.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}
	a.logger.Debug("モデルを初期化しました")

	if a.vectorStore != nil {
		if err := a.vectorStore.Init(ctx, a.embedder.Dimensions()); err != nil {
			return fmt.Errorf("failed to initialize vector store: %w", err)
		}
		a.logger.Debug("ベクトルストアを初期化しました", "dimensions", a.embedder.Dimensions())
	}

	for key, entry := range a.dbLookup {
		if err := entry.runner.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize aggregate database %q: %w", key, err)
		}
	}

	if a.cache != nil {
		if err := a.cache.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		a.logger.Debug("キャッシュを初期化しました")
	}

	// 事前登録ローダーはユニークIDで重複排除（先勝ち）してから取り込む
	seen := make(map[string]struct{})
	for _, loader := range a.pendingLoaders {
		id := loader.UniqueID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		if _, err := a.AddLoader(ctx, loader); err != nil {
			// ソース取得系の失敗はこのローダーをスキップして継続する
			a.logger.Warn("ローダーの取り込みに失敗しました", "loaderId", id, "error", err)
		}
	}
	a.pendingLoaders = nil

	return nil
}

// Loaders は登録済みローダーの現在のスナップショットを返す
func (a *Application) Loaders() []Loader {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Loader, len(a.loaders))
	copy(out, a.loaders)
	return out
}

// replaceLoader は同一IDの既存エントリを除去してからローダーを登録する
func (a *Application) replaceLoader(loader Loader) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := loader.UniqueID()
	kept := a.loaders[:0]
	for _, l := range a.loaders {
		if l.UniqueID() != id {
			kept = append(kept, l)
		}
	}
	a.loaders = append(kept, loader)
}

// removeLoader は指定IDのローダーを登録集合から外し、購読があれば停止する
func (a *Application) removeLoader(loaderID string) {
	a.mu.Lock()
	stop := a.stops[loaderID]
	delete(a.stops, loaderID)

	kept := a.loaders[:0]
	for _, l := range a.loaders {
		if l.UniqueID() != loaderID {
			kept = append(kept, l)
		}
	}
	a.loaders = kept
	a.mu.Unlock()

	if stop != nil {
		if err := stop(); err != nil {
			a.logger.Warn("ローダー購読の停止に失敗しました", "loaderId", loaderID, "error", err)
		}
	}
}

// DeleteLoader は指定ローダーIDの全レコードを削除する
// confirmedが偽の場合は何も行わずfalseを返す
func (a *Application) DeleteLoader(ctx context.Context, loaderID string, confirmed bool) (bool, error) {
	if !confirmed {
		a.logger.Warn("確認フラグなしでDeleteLoaderが呼ばれました。操作は行われません", "loaderId", loaderID)
		return false, nil
	}

	deleted, err := a.vectorStore.DeleteKeys(ctx, loaderID)
	if err != nil {
		return false, fmt.Errorf("failed to delete chunks for loader %s: %w", loaderID, err)
	}

	if a.cache != nil && deleted {
		if err := a.cache.DeleteLoader(ctx, loaderID); err != nil {
			return false, fmt.Errorf("failed to delete cache record for loader %s: %w", loaderID, err)
		}
	}

	a.removeLoader(loaderID)
	return deleted, nil
}

// DeleteAllEmbeddings はストアの全レコードを削除する
// confirmedが偽の場合は何も行わずfalseを返す
func (a *Application) DeleteAllEmbeddings(ctx context.Context, confirmed bool) (bool, error) {
	if !confirmed {
		a.logger.Warn("確認フラグなしでDeleteAllEmbeddingsが呼ばれました。操作は行われません")
		return false, nil
	}

	if err := a.vectorStore.Reset(ctx); err != nil {
		return false, fmt.Errorf("failed to reset vector store: %w", err)
	}
	return true, nil
}

// EmbeddingsCount はストア内のベクトルレコード数を返す
func (a *Application) EmbeddingsCount(ctx context.Context) (int64, error) {
	return a.vectorStore.VectorCount(ctx)
}

// DocsCount はストア内のドキュメント数の概算値を返す
func (a *Application) DocsCount(ctx context.Context) (int64, error) {
	return a.vectorStore.DocsCount(ctx)
}

// CreateVectorIndex はEmbeddingの次元数でベクトル検索インデックスを作成する
func (a *Application) CreateVectorIndex(ctx context.Context, similarity string) error {
	if similarity == "" {
		similarity = DefaultSimilarityFunction
	}
	return a.vectorStore.CreateVectorIndex(ctx, a.embedder.Dimensions(), similarity)
}

// CreateTextIndex は全文検索インデックスを作成する
func (a *Application) CreateTextIndex(ctx context.Context) error {
	return a.vectorStore.CreateTextIndex(ctx)
}

// Close はストリーミングローダーの購読をすべて停止する
func (a *Application) Close() {
	a.mu.Lock()
	stops := make([]func() error, 0, len(a.stops))
	for id, stop := range a.stops {
		stops = append(stops, stop)
		delete(a.stops, id)
	}
	a.mu.Unlock()

	for _, stop := range stops {
		if err := stop(); err != nil {
			a.logger.Warn("ローダー購読の停止に失敗しました", "error", err)
		}
	}
}
