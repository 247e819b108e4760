package loaders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// KafkaLoader はKafkaトピックをリアルタイムのコンテンツソースとして
// 購読するストリーミングローダー
//
// 初回取り込みのチャンク列は空で、Subscribe以降に届いたメッセージが
// 1件ずつチャンク列として流れる。メッセージのオフセットは取り込み側へ
// 引き渡した後にコミットされる
type KafkaLoader struct {
	brokers []string
	topic   string
	groupID string
	logger  *slog.Logger

	newReader func() *kafka.Reader
}

// KafkaLoaderOption は KafkaLoader のオプション設定
type KafkaLoaderOption func(*KafkaLoader)

// WithKafkaGroupID はコンシューマグループIDを上書きする
func WithKafkaGroupID(groupID string) KafkaLoaderOption {
	return func(l *KafkaLoader) {
		l.groupID = groupID
	}
}

// WithKafkaLogger はロガーを差し替える
func WithKafkaLogger(logger *slog.Logger) KafkaLoaderOption {
	return func(l *KafkaLoader) {
		l.logger = logger
	}
}

// NewKafkaLoader は新しい KafkaLoader を作成する
func NewKafkaLoader(brokers []string, topic string, opts ...KafkaLoaderOption) *KafkaLoader {
	l := &KafkaLoader{
		brokers: brokers,
		topic:   topic,
		groupID: "embed-rag-" + topic,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.newReader = func() *kafka.Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers: l.brokers,
			Topic:   l.topic,
			GroupID: l.groupID,
		})
	}
	return l
}

// Init は接続設定を検証する
func (l *KafkaLoader) Init(ctx context.Context) error {
	if len(l.brokers) == 0 {
		return fmt.Errorf("no Kafka brokers configured")
	}
	if l.topic == "" {
		return fmt.Errorf("no Kafka topic configured")
	}
	return nil
}

// UniqueID はトピックに基づくローダーIDを返す
func (l *KafkaLoader) UniqueID() string {
	return "KafkaLoader_" + contentHash(l.topic)
}

// Chunks は空のストリームを返す。コンテンツはSubscribe経由でのみ届く
func (l *KafkaLoader) Chunks(ctx context.Context) (rag.ChunkStream, error) {
	return rag.StreamOf(), nil
}

// Subscribe はトピックの購読を開始し、新着メッセージのチャンク列を流す
// 返される停止関数は購読を終了し、ストリームチャネルをクローズする
func (l *KafkaLoader) Subscribe(ctx context.Context) (<-chan rag.ChunkStream, func() error, error) {
	reader := l.newReader()
	subCtx, cancel := context.WithCancel(ctx)

	streams := make(chan rag.ChunkStream)
	go func() {
		defer close(streams)

		for {
			message, err := reader.FetchMessage(subCtx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				l.logger.Warn("Kafkaメッセージの取得に失敗しました", "topic", l.topic, "error", err)
				return
			}

			chunk := rag.Chunk{
				PageContent: rag.CleanString(string(message.Value)),
				Metadata: map[string]any{
					"source": l.topic,
					"type":   "KafkaLoader",
					"key":    string(message.Key),
					"offset": message.Offset,
				},
			}

			select {
			case streams <- rag.StreamOf(chunk):
			case <-subCtx.Done():
				return
			}

			if err := reader.CommitMessages(subCtx, message); err != nil {
				l.logger.Warn("Kafkaオフセットのコミットに失敗しました", "topic", l.topic, "error", err)
			}
		}
	}()

	stop := func() error {
		cancel()
		return reader.Close()
	}
	return streams, stop, nil
}

// インターフェース実装の確認
var _ rag.IncrementalLoader = (*KafkaLoader)(nil)
