package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jinford/embed-rag/internal/core/rag"
	"github.com/jinford/embed-rag/internal/infra/loaders"
	"github.com/urfave/cli/v3"
)

// IngestTextAction は文字列コンテンツを取り込む
// --file 指定時はファイル内容を、--content 指定時はその値を使用する
func IngestTextAction(ctx context.Context, cmd *cli.Command) error {
	content := cmd.String("content")
	if path := cmd.String("file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
		}
		content = string(raw)
	}
	if content == "" {
		return fmt.Errorf("--content または --file のいずれかを指定してください")
	}

	source := cmd.String("source")
	var opts []loaders.TextLoaderOption
	if source != "" {
		opts = append(opts, loaders.WithTextSource(source))
	}

	return runIngest(ctx, cmd, loaders.NewTextLoader(content, opts...))
}

// IngestJSONAction はJSONファイルを取り込む
func IngestJSONAction(ctx context.Context, cmd *cli.Command) error {
	raw, err := os.ReadFile(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	var opts []loaders.JSONLoaderOption
	if source := cmd.String("source"); source != "" {
		opts = append(opts, loaders.WithJSONSource(source))
	}

	return runIngest(ctx, cmd, loaders.NewJSONLoader(raw, opts...))
}

// IngestWebAction はWebページを取り込む
func IngestWebAction(ctx context.Context, cmd *cli.Command) error {
	return runIngest(ctx, cmd, loaders.NewWebLoader(cmd.String("url")))
}

// IngestSitemapAction はサイトマップ配下の全ページを取り込む
func IngestSitemapAction(ctx context.Context, cmd *cli.Command) error {
	return runIngest(ctx, cmd, loaders.NewSitemapLoader(cmd.String("url")))
}

// IngestDirectoryAction はローカルディレクトリを取り込む
func IngestDirectoryAction(ctx context.Context, cmd *cli.Command) error {
	return runIngest(ctx, cmd, loaders.NewDirectoryLoader(cmd.String("path")))
}

// IngestGitAction はGitリポジトリを取り込む
func IngestGitAction(ctx context.Context, cmd *cli.Command) error {
	var opts []loaders.GitLoaderOption
	if branch := cmd.String("branch"); branch != "" {
		opts = append(opts, loaders.WithGitBranch(branch))
	}
	return runIngest(ctx, cmd, loaders.NewGitLoader(cmd.String("url"), opts...))
}

// IngestKafkaAction はKafkaトピックの購読を開始し、停止されるまで取り込み続ける
func IngestKafkaAction(ctx context.Context, cmd *cli.Command) error {
	brokers := strings.Split(cmd.String("brokers"), ",")

	var opts []loaders.KafkaLoaderOption
	if groupID := cmd.String("group-id"); groupID != "" {
		opts = append(opts, loaders.WithKafkaGroupID(groupID))
	}
	loader := loaders.NewKafkaLoader(brokers, cmd.String("topic"), opts...)

	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.App.AddLoader(ctx, loader)
	if err != nil {
		return err
	}
	fmt.Printf("購読を開始しました: %s\n", result.UniqueID)

	// シグナルで停止されるまで購読を継続する
	<-ctx.Done()
	return nil
}

func runIngest(ctx context.Context, cmd *cli.Command, loader rag.Loader) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.App.AddLoader(ctx, loader)
	if err != nil {
		return err
	}

	fmt.Printf("取り込みが完了しました: loaderId=%s entriesAdded=%d\n", result.UniqueID, result.EntriesAdded)
	return nil
}
