// Package config はYAMLファイルと環境変数からアプリケーション設定を読み込む
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する
type Config struct {
	Logging      LoggingConfig      `yaml:"logging"`
	Model        ModelConfig        `yaml:"model"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Cache        CacheConfig        `yaml:"cache"`
	Reranker     RerankerConfig     `yaml:"reranker"`
	Search       SearchConfig       `yaml:"search"`
	Loaders      []LoaderConfig     `yaml:"loaders"`
	Aggregates   []AggregateConfig  `yaml:"aggregates"`
	Conversation ConversationConfig `yaml:"conversation"`
}

// LoggingConfig はロガーの設定
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug / info / warn / error
	Format string `yaml:"format"` // json / text
}

// ModelConfig は言語モデルの設定
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // openai
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
}

// EmbeddingConfig はEmbeddingモデルの設定
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
}

// VectorStoreConfig はベクトルストアの設定
type VectorStoreConfig struct {
	Provider         string `yaml:"provider"` // mongodb / pgvector / memory
	ConnectionString string `yaml:"connection_string"`
	Database         string `yaml:"database"`
	Collection       string `yaml:"collection"`
	Table            string `yaml:"table"`
}

// CacheConfig はローダー取り込み記録キャッシュの設定
type CacheConfig struct {
	Provider         string `yaml:"provider"` // mongodb / redis / memory
	ConnectionString string `yaml:"connection_string"`
	Database         string `yaml:"database"`
	Collection       string `yaml:"collection"`
	Addr             string `yaml:"addr"`
	Password         string `yaml:"password"`
	DB               int    `yaml:"db"`
}

// RerankerConfig はリランカーの設定
type RerankerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // llm
}

// SearchConfig は検索とクエリエンジンの設定
type SearchConfig struct {
	ResultCount        int     `yaml:"result_count"`
	RelevanceCutOff    float64 `yaml:"relevance_cutoff"`
	BatchSize          int     `yaml:"batch_size"`
	ContextTokenBudget int     `yaml:"context_token_budget"`
	QueryTemplate      string  `yaml:"query_template"`
	TokenizerEncoding  string  `yaml:"tokenizer_encoding"`
}

// LoaderConfig はコンテンツソース1つ分の設定
// Typeに応じて使用されるフィールドが異なる
type LoaderConfig struct {
	Type         string   `yaml:"type"` // text / json / web / sitemap / directory / git / kafka
	Content      string   `yaml:"content"`
	Source       string   `yaml:"source"`
	URL          string   `yaml:"url"`
	Path         string   `yaml:"path"`
	Branch       string   `yaml:"branch"`
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	GroupID      string   `yaml:"group_id"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
}

// AggregateConfig は構造化クエリ用の補助データベース設定
type AggregateConfig struct {
	Name             string            `yaml:"name"`
	ConnectionString string            `yaml:"connection_string"`
	Database         string            `yaml:"database"`
	Collection       string            `yaml:"collection"`
	QueryTemplate    string            `yaml:"query_template"`
	Schema           map[string]string `yaml:"schema"`
}

// ConversationConfig は会話履歴ストアの設定
type ConversationConfig struct {
	Provider string `yaml:"provider"` // memory
}

// Load は.envと設定ファイルを読み込み、検証済みのConfigを返す
// 設定値内の ${VAR} 形式の参照は環境変数で展開される
func Load(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			// 環境変数のみでも動作可能なので、ファイルがない場合はエラーとしない
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
		}
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnv(string(raw))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv は ${VAR} 形式の参照のみを環境変数で展開する
// 未設定の変数は展開せずそのまま残す。集約クエリテンプレートの
// ${param} プレースホルダが誤って消えないようにするための措置
func expandEnv(raw string) string {
	return envRefPattern.ReplaceAllStringFunc(raw, func(match string) string {
		key := match[2 : len(match)-1]
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		return match
	})
}

// Default はデフォルト値を設定したConfigを返す
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Model: ModelConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		VectorStore: VectorStoreConfig{
			Provider: "memory",
		},
		Cache: CacheConfig{
			Provider: "memory",
		},
		Search: SearchConfig{
			ResultCount:        7,
			RelevanceCutOff:    0,
			BatchSize:          500,
			ContextTokenBudget: 8000,
		},
		Conversation: ConversationConfig{
			Provider: "memory",
		},
	}
}

// Validate は設定の整合性を検証する
func (c *Config) Validate() error {
	if c.Model.Provider == "" {
		return fmt.Errorf("model.provider is required")
	}
	if c.Embedding.Provider == "" {
		return fmt.Errorf("embedding.provider is required")
	}
	if c.VectorStore.Provider == "" && len(c.Aggregates) == 0 {
		return fmt.Errorf("either vector_store.provider or aggregates must be configured")
	}

	for i, loader := range c.Loaders {
		if loader.Type == "" {
			return fmt.Errorf("loaders[%d].type is required", i)
		}
	}
	for i, agg := range c.Aggregates {
		if agg.Name == "" {
			return fmt.Errorf("aggregates[%d].name is required", i)
		}
		if agg.QueryTemplate == "" {
			return fmt.Errorf("aggregates[%d].query_template is required", i)
		}
	}
	return nil
}
