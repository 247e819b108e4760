package loaders

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// SitemapLoader はサイトマップXMLに列挙された全ページを取り込むローダー
// 各ページはWebLoaderに委譲され、順番にストリームへ流される
type SitemapLoader struct {
	url      string
	client   *http.Client
	splitter *RecursiveCharacterSplitter
}

// SitemapLoaderOption は SitemapLoader のオプション設定
type SitemapLoaderOption func(*SitemapLoader)

// WithSitemapHTTPClient はHTTPクライアントを差し替える
func WithSitemapHTTPClient(client *http.Client) SitemapLoaderOption {
	return func(l *SitemapLoader) {
		l.client = client
	}
}

// WithSitemapSplitter は分割器を差し替える
func WithSitemapSplitter(splitter *RecursiveCharacterSplitter) SitemapLoaderOption {
	return func(l *SitemapLoader) {
		l.splitter = splitter
	}
}

// NewSitemapLoader は新しい SitemapLoader を作成する
func NewSitemapLoader(url string, opts ...SitemapLoaderOption) *SitemapLoader {
	l := &SitemapLoader{
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
func (l *SitemapLoader) Init(ctx context.Context) error {
	return nil
}

// UniqueID はサイトマップURLのハッシュに基づくローダーIDを返す
func (l *SitemapLoader) UniqueID() string {
	return "SitemapLoader_" + contentHash(l.url)
}

// Chunks はサイトマップ内の全ページのチャンクをストリームで返す
// 個別ページの取得失敗はエラーとしてストリームに流れ、取り込み全体が停止する
func (l *SitemapLoader) Chunks(ctx context.Context) (rag.ChunkStream, error) {
	urls, err := l.fetchURLs(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan rag.StreamedChunk)
	go func() {
		defer close(out)

		for _, pageURL := range urls {
			page := NewWebLoader(pageURL,
				WithHTTPClient(l.client),
				WithWebSplitter(l.splitter),
			)

			stream, err := page.Chunks(ctx)
			if err != nil {
				out <- rag.StreamedChunk{Err: err}
				return
			}

			for sc := range stream {
				select {
				case out <- sc:
				case <-ctx.Done():
					return
				}
				if sc.Err != nil {
					return
				}
			}
		}
	}()

	return out, nil
}

type sitemapXML struct {
	URLs []struct {
		Loc     string `xml:"loc"`
		LastMod string `xml:"lastmod"`
	} `xml:"url"`
}

func (l *SitemapLoader) fetchURLs(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", l.url, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap %s: %w", l.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, l.url)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sitemap %s: %w", l.url, err)
	}

	return parseSitemap(raw)
}

// parseSitemap はサイトマップXMLからページURLの一覧を取り出す
func parseSitemap(raw []byte) ([]string, error) {
	var sitemap sitemapXML
	if err := xml.Unmarshal(raw, &sitemap); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap XML: %w", err)
	}

	urls := make([]string, 0, len(sitemap.URLs))
	for _, entry := range sitemap.URLs {
		if entry.Loc != "" {
			urls = append(urls, entry.Loc)
		}
	}
	return urls, nil
}

// インターフェース実装の確認
var _ rag.Loader = (*SitemapLoader)(nil)
