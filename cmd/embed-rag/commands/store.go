package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// StoreCountAction はストア内のレコード数を表示する
func StoreCountAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	embeddings, err := appCtx.Container.App.EmbeddingsCount(ctx)
	if err != nil {
		return err
	}
	docs, err := appCtx.Container.App.DocsCount(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("embeddings=%d docs=%d\n", embeddings, docs)
	return nil
}

// StoreResetAction はストアの全レコードを削除する
// --confirm なしでは削除は実行されない
func StoreResetAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	deleted, err := appCtx.Container.App.DeleteAllEmbeddings(ctx, cmd.Bool("confirm"))
	if err != nil {
		return err
	}

	if !deleted {
		fmt.Println("削除は実行されませんでした（--confirm を指定してください）")
		return nil
	}
	fmt.Println("ストアの全レコードを削除しました")
	return nil
}
