package rag

import (
	"context"
	"log/slog"

	"github.com/jinford/embed-rag/internal/core/conversation"
)

const (
	// DefaultInsertBatchSize はバッチ挿入のデフォルトサイズ
	DefaultInsertBatchSize = 500
	// DefaultSearchResultCount は検索結果のデフォルト件数
	DefaultSearchResultCount = 7
	// DefaultContextTokenBudget はコンテキストに許容するデフォルトトークン数
	DefaultContextTokenBudget = 8000

	// DefaultQueryTemplate はシステムプロンプトのデフォルトテンプレート
	DefaultQueryTemplate = `You are a helpful human like chat bot. Use relevant provided context and chat history to answer the query at the end. Answer in full. If you don't know the answer, just say that you don't know, don't try to make up an answer. Do not use words like context or training data when responding. You can say you do not have all the information but do not indicate that you are not a reliable source.`
)

// aggregateEntry は名前付き補助データベースの構成要素
type aggregateEntry struct {
	runner   AggregateRunner
	operator StructuredQueryOperator
}

// Builder はApplicationの構成を組み立てる
// Buildの呼び出しで依存の検証と初期化シーケンスが実行される
type Builder struct {
	loaders            []Loader
	vectorStore        VectorStore
	dbLookup           map[string]aggregateEntry
	defaultLookup      string
	cache              Cache
	reranker           Reranker
	embedder           Embedder
	model              Model
	conversations      conversation.Store
	tokenCounter       TokenCounter
	queryTemplate      string
	searchResultCount  int
	relevanceCutOff    float64
	batchSize          int
	contextTokenBudget int
	logger             *slog.Logger
}

// NewBuilder はデフォルト値を設定したBuilderを作成する
func NewBuilder() *Builder {
	return &Builder{
		dbLookup:           make(map[string]aggregateEntry),
		conversations:      conversation.NewInMemoryStore(),
		queryTemplate:      DefaultQueryTemplate,
		searchResultCount:  DefaultSearchResultCount,
		relevanceCutOff:    0,
		batchSize:          DefaultInsertBatchSize,
		contextTokenBudget: DefaultContextTokenBudget,
	}
}

// AddLoader は構築時に取り込むローダーを追加する
func (b *Builder) AddLoader(loader Loader) *Builder {
	b.loaders = append(b.loaders, loader)
	return b
}

// SetVectorStore はベクトルストアを設定する
func (b *Builder) SetVectorStore(store VectorStore) *Builder {
	b.vectorStore = store
	return b
}

// SetAggregateDatabase は名前付きの補助データベースを登録する
// 最初に登録されたものがクエリ時のデフォルトとなる
func (b *Builder) SetAggregateDatabase(key string, runner AggregateRunner, operator StructuredQueryOperator) *Builder {
	if len(b.dbLookup) == 0 {
		b.defaultLookup = key
	}
	b.dbLookup[key] = aggregateEntry{runner: runner, operator: operator}
	return b
}

// SetCache はローダー取り込み記録のキャッシュを設定する
func (b *Builder) SetCache(cache Cache) *Builder {
	b.cache = cache
	return b
}

// SetReranker はリランカーを設定する
func (b *Builder) SetReranker(reranker Reranker) *Builder {
	b.reranker = reranker
	return b
}

// SetEmbedder はEmbeddingモデルを設定する
func (b *Builder) SetEmbedder(embedder Embedder) *Builder {
	b.embedder = embedder
	return b
}

// SetModel は言語モデルを設定する
func (b *Builder) SetModel(model Model) *Builder {
	b.model = model
	return b
}

// SetConversationStore は会話履歴ストアを差し替える
func (b *Builder) SetConversationStore(store conversation.Store) *Builder {
	b.conversations = store
	return b
}

// SetTokenCounter はコンテキスト切り詰めに使用するトークンカウンタを設定する
func (b *Builder) SetTokenCounter(counter TokenCounter) *Builder {
	b.tokenCounter = counter
	return b
}

// SetQueryTemplate はシステムプロンプトテンプレートを上書きする
func (b *Builder) SetQueryTemplate(template string) *Builder {
	b.queryTemplate = template
	return b
}

// SetSearchResultCount は検索結果件数を上書きする
func (b *Builder) SetSearchResultCount(count int) *Builder {
	b.searchResultCount = count
	return b
}

// SetEmbeddingRelevanceCutOff はスコアの下限カットオフを設定する
// カットオフ以下（同値を含む）のスコアを持つ結果は除外される
func (b *Builder) SetEmbeddingRelevanceCutOff(cutOff float64) *Builder {
	b.relevanceCutOff = cutOff
	return b
}

// SetBatchSize はバッチ挿入サイズを上書きする（ビルダーレベルのみ）
func (b *Builder) SetBatchSize(size int) *Builder {
	if size > 0 {
		b.batchSize = size
	}
	return b
}

// SetContextTokenBudget はコンテキストのトークン上限を上書きする
func (b *Builder) SetContextTokenBudget(budget int) *Builder {
	if budget > 0 {
		b.contextTokenBudget = budget
	}
	return b
}

// SetLogger はロガーを設定する
func (b *Builder) SetLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build は設定を検証し、初期化済みのApplicationを返す
// モデル未設定、またはベクトルストアと補助データベースの両方が
// 未設定の場合は即座に失敗する
func (b *Builder) Build(ctx context.Context) (*Application, error) {
	app, err := newApplication(b)
	if err != nil {
		return nil, err
	}
	if err := app.init(ctx); err != nil {
		return nil, err
	}
	return app, nil
}
