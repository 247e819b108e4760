package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/embed-rag/cmd/embed-rag/commands"
	"github.com/urfave/cli/v3"
)

// commonFlags は全コマンド共通の設定フラグに追加フラグを連結して返す
func commonFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "設定ファイルパス",
			Value: "config.yaml",
		},
		&cli.StringFlag{
			Name:  "env",
			Usage: "環境変数ファイルパス",
			Value: ".env",
		},
	}
	return append(flags, extra...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定（設定ファイル読み込み後に各コマンドが上書きする）
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "embed-rag",
		Usage: "取り込み・検索・質問応答を備えたRAGオーケストレーションツール",
		Commands: []*cli.Command{
			{
				Name:  "ask",
				Usage: "取り込み済みデータに対して質問応答を実行",
				Flags: commonFlags(
					&cli.StringFlag{
						Name:     "query",
						Usage:    "質問文",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "conversation",
						Usage: "会話ID（省略時はデフォルト会話）",
					},
					&cli.BoolFlag{
						Name:  "stream",
						Usage: "回答をトークン単位で逐次出力（会話履歴には追記しない）",
					},
				),
				Action: commands.AskAction,
			},
			{
				Name:  "search",
				Usage: "検索コマンド",
				Commands: []*cli.Command{
					{
						Name:  "context",
						Usage: "リランク・カットオフ適用済みのコンテキスト検索",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:     "query",
								Usage:    "検索クエリ",
								Required: true,
							},
						),
						Action: commands.SearchContextAction,
					},
					{
						Name:  "vector",
						Usage: "ベクトル類似検索（未加工の結果）",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:     "query",
								Usage:    "検索クエリ",
								Required: true,
							},
						),
						Action: commands.SearchVectorAction,
					},
					{
						Name:  "hybrid",
						Usage: "ベクトル検索と全文検索のランク融合検索",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:     "query",
								Usage:    "検索クエリ",
								Required: true,
							},
							&cli.FloatFlag{
								Name:  "vector-weight",
								Usage: "ベクトル検索の重み",
								Value: 0.1,
							},
							&cli.FloatFlag{
								Name:  "fulltext-weight",
								Usage: "全文検索の重み",
								Value: 0.9,
							},
						),
						Action: commands.SearchHybridAction,
					},
				},
			},
			{
				Name:  "ingest",
				Usage: "データ取り込みコマンド",
				Commands: []*cli.Command{
					{
						Name:  "text",
						Usage: "文字列コンテンツを取り込み",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:  "content",
								Usage: "取り込むテキスト",
							},
							&cli.StringFlag{
								Name:  "file",
								Usage: "取り込むテキストファイルパス（--contentより優先）",
							},
							&cli.StringFlag{
								Name:  "source",
								Usage: "ソース名（メタデータに記録）",
							},
						),
						Action: commands.IngestTextAction,
					},
					{
						Name:  "json",
						Usage: "JSONファイルを取り込み",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:     "file",
								Usage:    "JSONファイルパス",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "source",
								Usage: "ソース名（メタデータに記録）",
							},
						),
						Action: commands.IngestJSONAction,
					},
					{
						Name:  "web",
						Usage: "Webページを取り込み",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:     "url",
								Usage:    "取り込むページのURL",
								Required: true,
							},
						),
						Action: commands.IngestWebAction,
					},
					{
						Name:  "sitemap",
						Usage: "サイトマップ配下の全ページを取り込み",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:     "url",
								Usage:    "サイトマップXMLのURL",
								Required: true,
							},
						),
						Action: commands.IngestSitemapAction,
					},
					{
						Name:  "directory",
						Usage: "ローカルディレクトリを取り込み",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:     "path",
								Usage:    "取り込むディレクトリパス",
								Required: true,
							},
						),
						Action: commands.IngestDirectoryAction,
					},
					{
						Name:  "git",
						Usage: "Gitリポジトリを取り込み",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:     "url",
								Usage:    "GitリポジトリURL",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "branch",
								Usage: "ブランチ名（省略時はデフォルトブランチ）",
							},
						),
						Action: commands.IngestGitAction,
					},
					{
						Name:  "kafka",
						Usage: "Kafkaトピックを購読して逐次取り込み",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:     "brokers",
								Usage:    "ブローカーアドレス（カンマ区切り）",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "topic",
								Usage:    "購読するトピック名",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "group-id",
								Usage: "コンシューマグループID",
							},
						),
						Action: commands.IngestKafkaAction,
					},
				},
			},
			{
				Name:  "loader",
				Usage: "ローダー管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "登録済みローダー一覧を表示",
						Flags:  commonFlags(),
						Action: commands.LoaderListAction,
					},
					{
						Name:  "delete",
						Usage: "指定ローダーの全レコードを削除",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ローダーID",
								Required: true,
							},
							&cli.BoolFlag{
								Name:  "confirm",
								Usage: "削除を実行（指定がない場合は何も行わない）",
							},
						),
						Action: commands.LoaderDeleteAction,
					},
				},
			},
			{
				Name:  "store",
				Usage: "ベクトルストア管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "count",
						Usage:  "ストア内のレコード数を表示",
						Flags:  commonFlags(),
						Action: commands.StoreCountAction,
					},
					{
						Name:  "reset",
						Usage: "ストアの全レコードを削除",
						Flags: commonFlags(
							&cli.BoolFlag{
								Name:  "confirm",
								Usage: "削除を実行（指定がない場合は何も行わない）",
							},
						),
						Action: commands.StoreResetAction,
					},
				},
			},
			{
				Name:  "index",
				Usage: "検索インデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "vector",
						Usage: "ベクトル検索インデックスを作成",
						Flags: commonFlags(
							&cli.StringFlag{
								Name:  "similarity",
								Usage: "類似度関数 (cosine/euclidean/dotProduct)",
								Value: "cosine",
							},
						),
						Action: commands.IndexVectorAction,
					},
					{
						Name:   "text",
						Usage:  "全文検索インデックスを作成",
						Flags:  commonFlags(),
						Action: commands.IndexTextAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
