// Package loaders はベクトルストアへ取り込むコンテンツソースの
// ローダー実装とテキスト分割器を提供する
package loaders

import (
	"strings"
)

const (
	// DefaultChunkSize は分割チャンクのデフォルト最大長
	DefaultChunkSize = 1000
	// DefaultChunkOverlap はチャンク間のデフォルトオーバーラップ長
	DefaultChunkOverlap = 200
)

// LengthFunc はテキストの長さの測り方を定義する
// デフォルトはルーン数だが、トークン数に差し替えられる
type LengthFunc func(text string) int

// RecursiveCharacterSplitter はセパレータの優先順位に従って
// テキストを再帰的に分割するテキスト分割器
//
// 段落 → 行 → 語の順に粗い区切りを試し、どの単位でも収まらない
// テキストは固定長で切り出す。返されるチャンクの長さは必ず
// chunkSize以下となる
type RecursiveCharacterSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	length       LengthFunc
}

// SplitterOption は RecursiveCharacterSplitter のオプション設定
type SplitterOption func(*RecursiveCharacterSplitter)

// WithChunkSize はチャンクの最大長を上書きする
func WithChunkSize(size int) SplitterOption {
	return func(s *RecursiveCharacterSplitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithChunkOverlap はチャンク間のオーバーラップ長を上書きする
func WithChunkOverlap(overlap int) SplitterOption {
	return func(s *RecursiveCharacterSplitter) {
		if overlap >= 0 {
			s.chunkOverlap = overlap
		}
	}
}

// WithSeparators はセパレータの優先順位を上書きする
func WithSeparators(separators ...string) SplitterOption {
	return func(s *RecursiveCharacterSplitter) {
		s.separators = separators
	}
}

// WithLengthFunc は長さの測り方を差し替える
func WithLengthFunc(fn LengthFunc) SplitterOption {
	return func(s *RecursiveCharacterSplitter) {
		s.length = fn
	}
}

// NewSplitter はデフォルト設定の RecursiveCharacterSplitter を作成する
func NewSplitter(opts ...SplitterOption) *RecursiveCharacterSplitter {
	s := &RecursiveCharacterSplitter{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		separators:   []string{"\n\n", "\n", " "},
		length: func(text string) int {
			return len([]rune(text))
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split はテキストをチャンク列に分割する
func (s *RecursiveCharacterSplitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.splitRecursive(text, s.separators)
}

func (s *RecursiveCharacterSplitter) splitRecursive(text string, separators []string) []string {
	if s.length(text) <= s.chunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return s.splitBySize(text)
	}

	sep := separators[0]
	rest := separators[1:]

	if !strings.Contains(text, sep) {
		return s.splitRecursive(text, rest)
	}

	// 大きすぎる断片はより細かいセパレータで再帰的に分割する
	var pieces []string
	for _, part := range strings.Split(text, sep) {
		if part == "" {
			continue
		}
		if s.length(part) > s.chunkSize {
			pieces = append(pieces, s.splitRecursive(part, rest)...)
			continue
		}
		pieces = append(pieces, part)
	}

	return s.merge(pieces, sep)
}

// merge は断片をchunkSizeを超えない範囲で貪欲に結合する
// チャンク境界では直前チャンクの末尾をオーバーラップとして引き継ぐ
func (s *RecursiveCharacterSplitter) merge(pieces []string, sep string) []string {
	var chunks []string
	current := ""

	for _, piece := range pieces {
		if current == "" {
			current = piece
			continue
		}

		candidate := current + sep + piece
		if s.length(candidate) <= s.chunkSize {
			current = candidate
			continue
		}

		chunks = append(chunks, current)

		if tail := s.overlapTail(current); tail != "" {
			seeded := tail + sep + piece
			if s.length(seeded) <= s.chunkSize {
				current = seeded
				continue
			}
		}
		current = piece
	}

	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// splitBySize はセパレータを使わずに固定長の窓で切り出す
func (s *RecursiveCharacterSplitter) splitBySize(text string) []string {
	runes := []rune(text)

	step := s.chunkSize - s.chunkOverlap
	if step <= 0 {
		step = s.chunkSize
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+s.chunkSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func (s *RecursiveCharacterSplitter) overlapTail(chunk string) string {
	if s.chunkOverlap <= 0 {
		return ""
	}
	runes := []rune(chunk)
	if len(runes) <= s.chunkOverlap {
		return chunk
	}
	return string(runes[len(runes)-s.chunkOverlap:])
}
