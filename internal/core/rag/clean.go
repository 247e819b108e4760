package rag

import (
	"strings"
	"unicode"
)

// CleanString はクエリおよびチャンクテキストを正規化する
// 制御文字を取り除き、連続する空白類を単一スペースへ畳み込む
func CleanString(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	prevSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
			}
			prevSpace = true
		case unicode.IsControl(r):
			// 制御文字は捨てる
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}
