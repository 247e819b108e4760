package commands

import (
	"context"
	"fmt"

	"github.com/jinford/embed-rag/internal/core/rag"
	"github.com/urfave/cli/v3"
)

// SearchContextAction はリランク・カットオフ適用済みのコンテキスト検索を実行する
func SearchContextAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	results, err := appCtx.Container.App.GetContext(ctx, cmd.String("query"))
	if err != nil {
		return err
	}

	printResults(results)
	return nil
}

// SearchVectorAction は未加工の類似検索を実行する
func SearchVectorAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	results, err := appCtx.Container.App.VectorQuery(ctx, cmd.String("query"))
	if err != nil {
		return err
	}

	printResults(results)
	return nil
}

// SearchHybridAction はベクトル検索と全文検索のランク融合検索を実行する
func SearchHybridAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	results, err := appCtx.Container.App.HybridQuery(ctx,
		cmd.String("query"),
		cmd.Float("vector-weight"),
		cmd.Float("fulltext-weight"),
	)
	if err != nil {
		return err
	}

	printResults(results)
	return nil
}

func printResults(results []rag.ExtractedChunk) {
	if len(results) == 0 {
		fmt.Println("該当するチャンクはありません")
		return
	}

	for i, result := range results {
		fmt.Printf("[%d] score=%.4f source=%v\n", i+1, result.Score, result.Metadata["source"])
		fmt.Printf("    %s\n", result.PageContent)
	}
}
