package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// IndexVectorAction はベクトル検索インデックスを作成する
func IndexVectorAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.App.CreateVectorIndex(ctx, cmd.String("similarity")); err != nil {
		return err
	}
	fmt.Println("ベクトル検索インデックスを作成しました")
	return nil
}

// IndexTextAction は全文検索インデックスを作成する
func IndexTextAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.App.CreateTextIndex(ctx); err != nil {
		return err
	}
	fmt.Println("全文検索インデックスを作成しました")
	return nil
}
