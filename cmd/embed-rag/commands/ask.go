package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// AskAction は質問応答を実行する
// --stream 指定時はトークンを逐次出力し、会話履歴には追記しない
func AskAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("config"), cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	query := cmd.String("query")
	conversationID := cmd.String("conversation")

	if cmd.Bool("stream") {
		events, sources, err := appCtx.Container.App.QueryStream(ctx, query, conversationID)
		if err != nil {
			return err
		}

		for event := range events {
			if event.Err != nil {
				return event.Err
			}
			fmt.Print(event.Token)
		}
		fmt.Println()

		printSources(sources)
		return nil
	}

	result, err := appCtx.Container.App.Query(ctx, query, conversationID)
	if err != nil {
		return err
	}

	fmt.Println(result.Result)
	printSources(result.Sources)
	return nil
}

func printSources(sources []string) {
	if len(sources) == 0 {
		return
	}

	fmt.Fprintln(os.Stderr, "\n参照ソース:")
	for _, source := range sources {
		fmt.Fprintf(os.Stderr, "  - %s\n", source)
	}
}
