package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// LoaderListAction は登録済みローダーの一覧を表示する
func LoaderListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	loaders := appCtx.Container.App.Loaders()
	if len(loaders) == 0 {
		fmt.Println("登録済みのローダーはありません")
		return nil
	}

	for _, loader := range loaders {
		fmt.Println(loader.UniqueID())
	}
	return nil
}

// LoaderDeleteAction は指定ローダーの全レコードを削除する
// --confirm なしでは削除は実行されない
func LoaderDeleteAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	loaderID := cmd.String("id")
	deleted, err := appCtx.Container.App.DeleteLoader(ctx, loaderID, cmd.Bool("confirm"))
	if err != nil {
		return err
	}

	if !deleted {
		fmt.Printf("ローダー %s は削除されませんでした（--confirm の指定または対象レコードを確認してください）\n", loaderID)
		return nil
	}
	fmt.Printf("ローダー %s を削除しました\n", loaderID)
	return nil
}
