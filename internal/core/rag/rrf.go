package rag

import "sort"

// rrfRankConstant は相互ランク融合のランク平滑化定数
const rrfRankConstant = 60

// ReciprocalRankFusion はベクトル検索と全文検索の結果リストをランク融合する
// 各リストのランクrの要素に weight * 1/(r+60) を加算し、合算スコアの降順で
// 上位k件を返す。両リストに現れた要素は各経路のスコアを合算した1件に集約される
//
// 融合をストア側のクエリ言語で表現できないアダプタ（pgvector / in-memory）が
// HybridSearchの実装に使用する
func ReciprocalRankFusion(vectorResults, textResults []ExtractedChunk, k int, vectorWeight, fullTextWeight float64) []ExtractedChunk {
	type fused struct {
		chunk ExtractedChunk
		order int
	}

	merged := make(map[string]*fused)
	order := 0

	keyOf := func(c ExtractedChunk) string {
		if id, ok := c.Metadata["id"].(string); ok && id != "" {
			return id
		}
		return c.PageContent
	}

	for rank, c := range vectorResults {
		score := vectorWeight * (1.0 / float64(rank+rrfRankConstant))
		key := keyOf(c)
		if f, ok := merged[key]; ok {
			if score > f.chunk.VSScore {
				f.chunk.VSScore = score
			}
		} else {
			c.VSScore = score
			c.FTSScore = 0
			merged[key] = &fused{chunk: c, order: order}
			order++
		}
	}

	for rank, c := range textResults {
		score := fullTextWeight * (1.0 / float64(rank+rrfRankConstant))
		key := keyOf(c)
		if f, ok := merged[key]; ok {
			if score > f.chunk.FTSScore {
				f.chunk.FTSScore = score
			}
		} else {
			c.VSScore = 0
			c.FTSScore = score
			merged[key] = &fused{chunk: c, order: order}
			order++
		}
	}

	results := make([]*fused, 0, len(merged))
	for _, f := range merged {
		f.chunk.Score = f.chunk.VSScore + f.chunk.FTSScore
		results = append(results, f)
	}

	// スコア降順、同点は登場順で安定
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].chunk.Score != results[j].chunk.Score {
			return results[i].chunk.Score > results[j].chunk.Score
		}
		return results[i].order < results[j].order
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}

	out := make([]ExtractedChunk, 0, len(results))
	for _, f := range results {
		out = append(out, f.chunk)
	}
	return out
}
