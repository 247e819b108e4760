package rag

import (
	"context"
	"fmt"
	"maps"
)

// chunkID はローダーIDと連番から決定的なチャンクIDを生成する
func chunkID(loaderID string, seq int) string {
	return fmt.Sprintf("%s_%d", loaderID, seq)
}

// AddLoader はローダー1つ分のコンテンツをストアへ取り込む
//
// ローダーの初期化に失敗した場合、この呼び出し全体が失敗しローダーは
// 登録されない。キャッシュに過去の取り込み記録がある場合は先に前回分を
// 削除する（冪等な置換）。削除の失敗は記録されるのみで、取り込みは
// 続行される。チャンク列はバッチ単位で埋め込み・挿入され、バッチ間に
// トランザクションはない（途中失敗時、挿入済みバッチは残る）
func (a *Application) AddLoader(ctx context.Context, loader Loader) (AddLoaderResult, error) {
	if a.vectorStore == nil {
		return AddLoaderResult{}, ErrStoreNotSet
	}

	uniqueID := loader.UniqueID()
	a.logger.Debug("ローダーの取り込みを開始", "loaderId", uniqueID)

	if err := loader.Init(ctx); err != nil {
		return AddLoaderResult{}, fmt.Errorf("failed to initialize loader %s: %w", uniqueID, err)
	}

	stream, err := loader.Chunks(ctx)
	if err != nil {
		return AddLoaderResult{}, fmt.Errorf("failed to get chunks from loader %s: %w", uniqueID, err)
	}

	if a.cache != nil {
		recordOpt, err := a.cache.GetLoader(ctx, uniqueID)
		if err != nil {
			return AddLoaderResult{}, fmt.Errorf("failed to read cache record for loader %s: %w", uniqueID, err)
		}
		if record, exists := recordOpt.Get(); exists && record.ChunkCount > 0 {
			a.logger.Debug("取り込み済みローダーを検出。前回分を削除します",
				"loaderId", uniqueID,
				"previousChunkCount", record.ChunkCount,
			)
			if _, err := a.DeleteLoader(ctx, uniqueID, true); err != nil {
				// 削除失敗は致命傷にしない。重複データが残り得る点は既知のトレードオフ
				a.logger.Warn("前回分の削除に失敗しました。取り込みは続行します",
					"loaderId", uniqueID,
					"error", err,
				)
			}
		}
	}

	newInserts, chunkCount, err := a.batchLoadChunks(ctx, uniqueID, stream)
	if err != nil {
		return AddLoaderResult{}, err
	}

	if a.cache != nil {
		if err := a.cache.AddLoader(ctx, uniqueID, chunkCount); err != nil {
			return AddLoaderResult{}, fmt.Errorf("failed to record loader %s in cache: %w", uniqueID, err)
		}
	}

	a.logger.Debug("ローダーの取り込みが完了", "loaderId", uniqueID, "entriesAdded", newInserts)

	if incremental, ok := loader.(IncrementalLoader); ok {
		if err := a.registerIncremental(ctx, uniqueID, incremental); err != nil {
			return AddLoaderResult{}, fmt.Errorf("failed to subscribe incremental loader %s: %w", uniqueID, err)
		}
	}

	a.replaceLoader(loader)

	return AddLoaderResult{EntriesAdded: newInserts, UniqueID: uniqueID}, nil
}

// batchLoadChunks はチャンク列を消費し、バッチ単位で埋め込み・挿入する
// バッチは厳密に逐次実行される。挿入件数と消費チャンク数を返す
func (a *Application) batchLoadChunks(ctx context.Context, uniqueID string, stream ChunkStream) (newInserts int, chunkCount int, err error) {
	batch := make([]FormattedChunk, 0, a.batchSize)
	seq := 0

	for sc := range stream {
		if sc.Err != nil {
			return newInserts, seq, fmt.Errorf("chunk stream failed for loader %s: %w", uniqueID, sc.Err)
		}

		batch = append(batch, a.formatChunk(uniqueID, seq, sc.Chunk))
		seq++

		if len(batch) >= a.batchSize {
			n, err := a.batchLoadEmbeddings(ctx, uniqueID, batch)
			if err != nil {
				return newInserts, seq, err
			}
			newInserts += n
			batch = batch[:0]
		}
	}

	// 端数のフラッシュ（空の場合はno-op）
	n, err := a.batchLoadEmbeddings(ctx, uniqueID, batch)
	if err != nil {
		return newInserts, seq, err
	}
	newInserts += n

	return newInserts, seq, nil
}

// formatChunk はチャンクに決定的なIDを割り当てる
// メタデータにもuniqueLoaderId/idを反映し、ストア経由での復元を可能にする
func (a *Application) formatChunk(uniqueID string, seq int, c Chunk) FormattedChunk {
	id := chunkID(uniqueID, seq)

	metadata := maps.Clone(c.Metadata)
	if metadata == nil {
		metadata = make(map[string]any, 2)
	}
	metadata["uniqueLoaderId"] = uniqueID
	metadata["id"] = id

	return FormattedChunk{
		Chunk:    Chunk{PageContent: c.PageContent, Metadata: metadata},
		LoaderID: uniqueID,
		ID:       id,
	}
}

// batchLoadEmbeddings はバッチ全体を1回のEmbedding呼び出しで処理し挿入する
func (a *Application) batchLoadEmbeddings(ctx context.Context, uniqueID string, batch []FormattedChunk) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.PageContent
	}

	vectors, err := a.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed batch for loader %s: %w", uniqueID, err)
	}
	if len(vectors) != len(batch) {
		return 0, fmt.Errorf("embedding count mismatch for loader %s: got %d, want %d", uniqueID, len(vectors), len(batch))
	}

	insertable := make([]InsertableChunk, len(batch))
	for i, c := range batch {
		insertable[i] = InsertableChunk{FormattedChunk: c, Vector: vectors[i]}
	}

	a.logger.Debug("バッチEmbeddingを取得", "loaderId", uniqueID, "batchSize", len(batch))

	n, err := a.vectorStore.InsertChunks(ctx, insertable)
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch for loader %s: %w", uniqueID, err)
	}
	return n, nil
}

// registerIncremental はストリーミングローダーの購読を開始する
// 新着チャンク列は初回ロードと同じバッチ手順で、同じローダーIDに対して
// 追加挿入される（前回分の削除は行わない）
func (a *Application) registerIncremental(ctx context.Context, uniqueID string, loader IncrementalLoader) error {
	streams, stop, err := loader.Subscribe(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if prev, ok := a.stops[uniqueID]; ok {
		// 同一IDの旧購読は置き換える
		defer func() {
			if err := prev(); err != nil {
				a.logger.Warn("旧購読の停止に失敗しました", "loaderId", uniqueID, "error", err)
			}
		}()
	}
	a.stops[uniqueID] = stop
	a.mu.Unlock()

	a.logger.Debug("ストリーミングローダーを購読", "loaderId", uniqueID)

	go func() {
		for stream := range streams {
			inserted, _, err := a.batchLoadChunks(ctx, uniqueID, stream)
			if err != nil {
				a.logger.Warn("新着チャンクの取り込みに失敗しました", "loaderId", uniqueID, "error", err)
				continue
			}
			a.logger.Debug("新着チャンクを取り込みました", "loaderId", uniqueID, "entriesAdded", inserted)
		}
	}()

	return nil
}
