// Package container は設定からアプリケーションを組み立てる合成ルート
// プロバイダの解決はレジストリ経由で行われ、新しい実装は
// レジストリへの登録のみで追加できる
package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/embed-rag/internal/core/rag"
	"github.com/jinford/embed-rag/internal/core/structquery"
	"github.com/jinford/embed-rag/internal/infra/loaders"
	"github.com/jinford/embed-rag/internal/infra/memory"
	"github.com/jinford/embed-rag/internal/infra/mongodb"
	"github.com/jinford/embed-rag/internal/infra/openai"
	"github.com/jinford/embed-rag/internal/infra/pgvector"
	"github.com/jinford/embed-rag/internal/infra/rediscache"
	"github.com/jinford/embed-rag/internal/infra/rerank"
	"github.com/jinford/embed-rag/internal/infra/tokenizer"
	"github.com/jinford/embed-rag/internal/platform/config"
	"github.com/jinford/embed-rag/internal/platform/registry"
)

// Registries はプロバイダ種別ごとのレジストリを保持する
type Registries struct {
	Models    *registry.Registry[config.ModelConfig, rag.Model]
	Embedders *registry.Registry[config.EmbeddingConfig, rag.Embedder]
	Stores    *registry.Registry[config.VectorStoreConfig, rag.VectorStore]
	Caches    *registry.Registry[config.CacheConfig, rag.Cache]
	Loaders   *registry.Registry[config.LoaderConfig, rag.Loader]
}

// DefaultRegistries は組み込みプロバイダを登録済みのRegistriesを返す
func DefaultRegistries() *Registries {
	regs := &Registries{
		Models:    registry.New[config.ModelConfig, rag.Model]("model"),
		Embedders: registry.New[config.EmbeddingConfig, rag.Embedder]("embedding"),
		Stores:    registry.New[config.VectorStoreConfig, rag.VectorStore]("vector store"),
		Caches:    registry.New[config.CacheConfig, rag.Cache]("cache"),
		Loaders:   registry.New[config.LoaderConfig, rag.Loader]("loader"),
	}

	regs.Models.Register("openai", func(cfg config.ModelConfig) (rag.Model, error) {
		return openai.NewChatModel(cfg.APIKey,
			openai.WithChatModel(cfg.Model),
			openai.WithTemperature(cfg.Temperature),
		)
	})

	regs.Embedders.Register("openai", func(cfg config.EmbeddingConfig) (rag.Embedder, error) {
		return openai.NewEmbedder(cfg.APIKey,
			openai.WithEmbeddingModel(cfg.Model),
			openai.WithEmbeddingDimension(cfg.Dimensions),
		), nil
	})

	regs.Stores.Register("mongodb", func(cfg config.VectorStoreConfig) (rag.VectorStore, error) {
		return mongodb.NewStore(cfg.ConnectionString, cfg.Database, cfg.Collection), nil
	})
	regs.Stores.Register("pgvector", func(cfg config.VectorStoreConfig) (rag.VectorStore, error) {
		var opts []pgvector.StoreOption
		if cfg.Table != "" {
			opts = append(opts, pgvector.WithTableName(cfg.Table))
		}
		return pgvector.NewStore(cfg.ConnectionString, opts...), nil
	})
	regs.Stores.Register("memory", func(cfg config.VectorStoreConfig) (rag.VectorStore, error) {
		return memory.NewStore(), nil
	})

	regs.Caches.Register("mongodb", func(cfg config.CacheConfig) (rag.Cache, error) {
		return mongodb.NewCache(cfg.ConnectionString, cfg.Database, cfg.Collection), nil
	})
	regs.Caches.Register("redis", func(cfg config.CacheConfig) (rag.Cache, error) {
		return rediscache.NewFromAddr(cfg.Addr, cfg.Password, cfg.DB), nil
	})
	regs.Caches.Register("memory", func(cfg config.CacheConfig) (rag.Cache, error) {
		return memory.NewCache(), nil
	})

	registerLoaderFactories(regs.Loaders)

	return regs
}

func registerLoaderFactories(r *registry.Registry[config.LoaderConfig, rag.Loader]) {
	splitterFor := func(cfg config.LoaderConfig) *loaders.RecursiveCharacterSplitter {
		var opts []loaders.SplitterOption
		if cfg.ChunkSize > 0 {
			opts = append(opts, loaders.WithChunkSize(cfg.ChunkSize))
		}
		if cfg.ChunkOverlap > 0 {
			opts = append(opts, loaders.WithChunkOverlap(cfg.ChunkOverlap))
		}
		return loaders.NewSplitter(opts...)
	}

	r.Register("text", func(cfg config.LoaderConfig) (rag.Loader, error) {
		opts := []loaders.TextLoaderOption{loaders.WithTextSplitter(splitterFor(cfg))}
		if cfg.Source != "" {
			opts = append(opts, loaders.WithTextSource(cfg.Source))
		}
		return loaders.NewTextLoader(cfg.Content, opts...), nil
	})

	r.Register("json", func(cfg config.LoaderConfig) (rag.Loader, error) {
		var opts []loaders.JSONLoaderOption
		if cfg.Source != "" {
			opts = append(opts, loaders.WithJSONSource(cfg.Source))
		}
		return loaders.NewJSONLoader([]byte(cfg.Content), opts...), nil
	})

	r.Register("web", func(cfg config.LoaderConfig) (rag.Loader, error) {
		return loaders.NewWebLoader(cfg.URL, loaders.WithWebSplitter(splitterFor(cfg))), nil
	})

	r.Register("sitemap", func(cfg config.LoaderConfig) (rag.Loader, error) {
		return loaders.NewSitemapLoader(cfg.URL, loaders.WithSitemapSplitter(splitterFor(cfg))), nil
	})

	r.Register("directory", func(cfg config.LoaderConfig) (rag.Loader, error) {
		return loaders.NewDirectoryLoader(cfg.Path, loaders.WithDirectorySplitter(splitterFor(cfg))), nil
	})

	r.Register("git", func(cfg config.LoaderConfig) (rag.Loader, error) {
		opts := []loaders.GitLoaderOption{loaders.WithGitSplitter(splitterFor(cfg))}
		if cfg.Branch != "" {
			opts = append(opts, loaders.WithGitBranch(cfg.Branch))
		}
		return loaders.NewGitLoader(cfg.URL, opts...), nil
	})

	r.Register("kafka", func(cfg config.LoaderConfig) (rag.Loader, error) {
		var opts []loaders.KafkaLoaderOption
		if cfg.GroupID != "" {
			opts = append(opts, loaders.WithKafkaGroupID(cfg.GroupID))
		}
		return loaders.NewKafkaLoader(cfg.Brokers, cfg.Topic, opts...), nil
	})
}

// Container は初期化済みのアプリケーションと共有リソースを保持する
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	App    *rag.Application
}

// New は設定からアプリケーションを組み立て、初期化まで行う
func New(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*Container, error) {
	return NewWithRegistries(ctx, logger, cfg, DefaultRegistries())
}

// NewWithRegistries は指定レジストリでアプリケーションを組み立てる
func NewWithRegistries(ctx context.Context, logger *slog.Logger, cfg *config.Config, regs *Registries) (*Container, error) {
	model, err := regs.Models.Create(cfg.Model.Provider, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	builder := rag.NewBuilder().
		SetModel(model).
		SetLogger(logger)

	if cfg.VectorStore.Provider != "" {
		embedder, err := regs.Embedders.Create(cfg.Embedding.Provider, cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		builder.SetEmbedder(embedder)

		store, err := regs.Stores.Create(cfg.VectorStore.Provider, cfg.VectorStore)
		if err != nil {
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
		builder.SetVectorStore(store)
	}

	if cfg.Cache.Provider != "" {
		cache, err := regs.Caches.Create(cfg.Cache.Provider, cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		builder.SetCache(cache)
	}

	if cfg.Reranker.Enabled {
		builder.SetReranker(rerank.NewLLMReranker(model, rerank.WithLogger(logger)))
	}

	if counter, err := tokenizer.NewCounter(cfg.Search.TokenizerEncoding); err != nil {
		// トークナイザなしでも文字数による概算で動作する
		logger.Warn("トークンカウンタの初期化に失敗しました", "error", err)
	} else {
		builder.SetTokenCounter(counter)
	}

	applySearchConfig(builder, cfg.Search)

	for i, loaderCfg := range cfg.Loaders {
		loader, err := regs.Loaders.Create(loaderCfg.Type, loaderCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create loader %d: %w", i, err)
		}
		builder.AddLoader(loader)
	}

	for _, agg := range cfg.Aggregates {
		runner := mongodb.NewCRUD(agg.ConnectionString, agg.Database, agg.Collection)
		operator := structquery.New(model, agg.QueryTemplate, agg.Schema, structquery.WithLogger(logger))
		builder.SetAggregateDatabase(agg.Name, runner, operator)
	}

	app, err := builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}

	return &Container{
		Config: cfg,
		Logger: logger,
		App:    app,
	}, nil
}

func applySearchConfig(builder *rag.Builder, cfg config.SearchConfig) {
	if cfg.ResultCount > 0 {
		builder.SetSearchResultCount(cfg.ResultCount)
	}
	builder.SetEmbeddingRelevanceCutOff(cfg.RelevanceCutOff)
	if cfg.BatchSize > 0 {
		builder.SetBatchSize(cfg.BatchSize)
	}
	if cfg.ContextTokenBudget > 0 {
		builder.SetContextTokenBudget(cfg.ContextTokenBudget)
	}
	if cfg.QueryTemplate != "" {
		builder.SetQueryTemplate(cfg.QueryTemplate)
	}
}

// Close はアプリケーションが保持するリソースをクリーンアップする
func (c *Container) Close() {
	if c.App != nil {
		c.App.Close()
	}
}
