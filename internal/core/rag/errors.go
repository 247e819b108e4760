package rag

import "errors"

var (
	// ErrModelNotSet はモデル未設定のまま構築しようとした場合のエラー
	ErrModelNotSet = errors.New("model not set")

	// ErrStoreNotSet はベクトルストアも補助データベースも未設定の場合のエラー
	ErrStoreNotSet = errors.New("vector store or aggregate database not set")

	// ErrEmbedderNotSet はEmbedding未設定のまま構築しようとした場合のエラー
	ErrEmbedderNotSet = errors.New("embedding model not set")

	// ErrNoStructuredQuery は構造化クエリを生成できなかったことを表すセンチネル
	// 呼び出し側は例外処理なしに「構造化クエリなし」へ分岐できる
	ErrNoStructuredQuery = errors.New("no structured query available")
)
