package loaders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	giturls "github.com/whilp/git-urls"

	"github.com/jinford/embed-rag/internal/core/rag"
)

// GitLoader はGitリポジトリをクローンしてファイルを取り込むローダー
//
// ベンダーディレクトリとバイナリファイルはgo-enryの判定でスキップされる
// クローン先が既に存在する場合はそのまま再利用される
type GitLoader struct {
	url      string
	branch   string
	baseDir  string
	splitter *RecursiveCharacterSplitter

	repoPath string
}

// GitLoaderOption は GitLoader のオプション設定
type GitLoaderOption func(*GitLoader)

// WithGitBranch はチェックアウトするブランチを設定する
func WithGitBranch(branch string) GitLoaderOption {
	return func(l *GitLoader) {
		l.branch = branch
	}
}

// WithGitCloneBaseDir はクローン先のベースディレクトリを上書きする
func WithGitCloneBaseDir(dir string) GitLoaderOption {
	return func(l *GitLoader) {
		l.baseDir = dir
	}
}

// WithGitSplitter は分割器を差し替える
func WithGitSplitter(splitter *RecursiveCharacterSplitter) GitLoaderOption {
	return func(l *GitLoader) {
		l.splitter = splitter
	}
}

// NewGitLoader は新しい GitLoader を作成する
func NewGitLoader(url string, opts ...GitLoaderOption) *GitLoader {
	l := &GitLoader{
		url:      url,
		baseDir:  filepath.Join(os.TempDir(), "embed-rag-repos"),
		splitter: NewSplitter(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// sourceName はGit URLを github.com/user/repo 形式のソース名へ変換する
func (l *GitLoader) sourceName() string {
	u, err := giturls.Parse(l.url)
	if err != nil {
		return strings.TrimSuffix(l.url, ".git")
	}

	hostname := u.Hostname()
	if hostname == "" {
		hostname = u.Host
	}

	path := strings.TrimPrefix(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")

	return filepath.Join(hostname, path)
}

// Init はリポジトリをクローンする。クローン済みの場合は再利用する
func (l *GitLoader) Init(ctx context.Context) error {
	l.repoPath = filepath.Join(l.baseDir, l.sourceName())

	if _, err := os.Stat(filepath.Join(l.repoPath, ".git")); err == nil {
		return nil
	}

	cloneOpts := &git.CloneOptions{
		URL:   l.url,
		Depth: 1,
	}
	if l.branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(l.branch)
		cloneOpts.SingleBranch = true
	}

	if _, err := git.PlainCloneContext(ctx, l.repoPath, false, cloneOpts); err != nil {
		return fmt.Errorf("failed to clone repository %s: %w", l.url, err)
	}
	return nil
}

// UniqueID はリポジトリとブランチに基づくローダーIDを返す
func (l *GitLoader) UniqueID() string {
	return "GitLoader_" + contentHash(l.sourceName()+"@"+l.branch)
}

// Chunks はリポジトリ内のテキストファイルの分割チャンクをストリームで返す
func (l *GitLoader) Chunks(ctx context.Context) (rag.ChunkStream, error) {
	if l.repoPath == "" {
		return nil, fmt.Errorf("git loader for %s is not initialized", l.url)
	}

	inner := NewDirectoryLoader(l.repoPath, WithDirectorySplitter(l.splitter))
	if err := inner.Init(ctx); err != nil {
		return nil, err
	}

	stream, err := inner.Chunks(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan rag.StreamedChunk)
	go func() {
		defer close(out)

		source := l.sourceName()
		for sc := range stream {
			if sc.Err == nil {
				sc.Chunk = l.annotate(sc.Chunk, source)
				if sc.Chunk.PageContent == "" {
					continue
				}
			}
			select {
			case out <- sc:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// annotate はチャンクのメタデータをGitソース用に書き換える
// ベンダーファイルは本文を空にして取り込み対象から外す
func (l *GitLoader) annotate(chunk rag.Chunk, source string) rag.Chunk {
	rel, _ := chunk.Metadata["source"].(string)
	if rel != "" && enry.IsVendor(rel) {
		return rag.Chunk{}
	}

	chunk.Metadata["source"] = source + "/" + filepath.ToSlash(rel)
	chunk.Metadata["type"] = "GitLoader"
	if language := enry.GetLanguage(filepath.Base(rel), []byte(chunk.PageContent)); language != "" {
		chunk.Metadata["language"] = language
	}
	return chunk
}

// インターフェース実装の確認
var _ rag.Loader = (*GitLoader)(nil)
