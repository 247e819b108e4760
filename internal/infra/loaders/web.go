package loaders

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// defaultHTTPTimeout はページ取得のデフォルトタイムアウト
const defaultHTTPTimeout = 30 * time.Second

// WebLoader はWebページの本文テキストを取り込むローダー
// ページの取得はChunksのストリームが消費されるまで遅延される
type WebLoader struct {
	url      string
	client   *http.Client
	splitter *RecursiveCharacterSplitter
}

// WebLoaderOption は WebLoader のオプション設定
type WebLoaderOption func(*WebLoader)

// WithHTTPClient はHTTPクライアントを差し替える
func WithHTTPClient(client *http.Client) WebLoaderOption {
	return func(l *WebLoader) {
		l.client = client
	}
}

// WithWebSplitter は分割器を差し替える
func WithWebSplitter(splitter *RecursiveCharacterSplitter) WebLoaderOption {
	return func(l *WebLoader) {
		l.splitter = splitter
	}
}

// NewWebLoader は新しい WebLoader を作成する
func NewWebLoader(url string, opts ...WebLoaderOption) *WebLoader {
	l := &WebLoader{
		url:      url,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		splitter: NewSplitter(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init は実装上必要な初期化を行わない
func (l *WebLoader) Init(ctx context.Context) error {
	return nil
}

// UniqueID はURLのハッシュに基づくローダーIDを返す
func (l *WebLoader) UniqueID() string {
	return "WebLoader_" + contentHash(l.url)
}

// Chunks はページ本文の分割チャンクをストリームで返す
func (l *WebLoader) Chunks(ctx context.Context) (rag.ChunkStream, error) {
	out := make(chan rag.StreamedChunk)

	go func() {
		defer close(out)

		text, err := l.fetchText(ctx)
		if err != nil {
			out <- rag.StreamedChunk{Err: err}
			return
		}

		for _, part := range l.splitter.Split(text) {
			chunk := rag.Chunk{
				PageContent: rag.CleanString(part),
				Metadata: map[string]any{
					"source": l.url,
					"type":   "WebLoader",
				},
			}
			select {
			case out <- rag.StreamedChunk{Chunk: chunk}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (l *WebLoader) fetchText(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", l.url, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", l.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, l.url)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML from %s: %w", l.url, err)
	}

	return extractText(doc), nil
}

// extractText はHTMLツリーから可視テキストを抽出する
// script / style / noscript 配下のテキストは除外される
func extractText(node *html.Node) string {
	var b strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(node)

	return b.String()
}

// インターフェース実装の確認
var _ rag.Loader = (*WebLoader)(nil)
