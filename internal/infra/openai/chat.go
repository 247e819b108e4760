package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/embed-rag/internal/core/conversation"
	"github.com/jinford/embed-rag/internal/core/rag"
)

const (
	// DefaultChatModel はデフォルトで使用するOpenAIモデル
	DefaultChatModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ChatModel は OpenAI Chat Completions API を使用した言語モデル実装
type ChatModel struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
}

type chatOptions struct {
	model       string
	temperature float64
	timeout     time.Duration
}

// ChatOption は ChatModel のオプション設定
type ChatOption func(*chatOptions)

// WithChatModel はモデル名を上書きする
func WithChatModel(model string) ChatOption {
	return func(o *chatOptions) {
		o.model = model
	}
}

// WithTemperature は生成温度を上書きする
func WithTemperature(temperature float64) ChatOption {
	return func(o *chatOptions) {
		o.temperature = temperature
	}
}

// WithTimeout はAPI呼び出しのタイムアウトを上書きする
func WithTimeout(timeout time.Duration) ChatOption {
	return func(o *chatOptions) {
		o.timeout = timeout
	}
}

// NewChatModel は新しい ChatModel を作成する
func NewChatModel(apiKey string, opts ...ChatOption) (*ChatModel, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := chatOptions{
		model:       DefaultChatModel,
		temperature: 0.1,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &ChatModel{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       options.model,
		temperature: options.temperature,
		timeout:     options.timeout,
	}, nil
}

// Init は実装上必要な初期化を行わない
func (c *ChatModel) Init(ctx context.Context) error {
	return nil
}

// ModelName はモデル名を返す
func (c *ChatModel) ModelName() string {
	return c.model
}

// Generate は検索コンテキストと会話履歴を含めてテキストを生成する
func (c *ChatModel) Generate(ctx context.Context, req rag.GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := c.buildParams(req)

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoffDuration > MaxBackoff {
				backoffDuration = MaxBackoff
			}

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRateLimitError(err) {
				continue
			}

			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// GenerateStream はトークン単位のストリーミング応答を返す
// チャネルはストリーム終端（またはエラー）で必ずクローズされる
func (c *ChatModel) GenerateStream(ctx context.Context, req rag.GenerateRequest) (<-chan rag.StreamEvent, error) {
	params := c.buildParams(req)

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	events := make(chan rag.StreamEvent)
	go func() {
		defer close(events)

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			token := chunk.Choices[0].Delta.Content
			if token == "" {
				continue
			}

			select {
			case events <- rag.StreamEvent{Token: token}:
			case <-ctx.Done():
				events <- rag.StreamEvent{Err: ctx.Err()}
				return
			}
		}

		if err := stream.Err(); err != nil {
			events <- rag.StreamEvent{Err: fmt.Errorf("OpenAI stream failed: %w", err)}
			return
		}
		events <- rag.StreamEvent{Done: true}
	}()

	return events, nil
}

// buildParams はシステムプロンプト・コンテキスト・会話履歴から
// Chat Completionsのメッセージ列を組み立てる
func (c *ChatModel) buildParams(req rag.GenerateRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+3)

	system := req.System
	if len(req.Context) > 0 {
		contents := make([]string, 0, len(req.Context))
		for _, chunk := range req.Context {
			contents = append(contents, chunk.PageContent)
		}
		system += "\n\nContext:\n" + strings.Join(contents, "\n---\n")
	}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	for _, entry := range req.History {
		switch entry.Sender {
		case conversation.SenderHuman:
			messages = append(messages, openai.UserMessage(entry.Message))
		case conversation.SenderAI:
			messages = append(messages, openai.AssistantMessage(entry.Message))
		case conversation.SenderSystem:
			messages = append(messages, openai.SystemMessage(entry.Message))
		}
	}

	messages = append(messages, openai.UserMessage(req.Query))

	return openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

// インターフェース実装の確認
var _ rag.Model = (*ChatModel)(nil)
