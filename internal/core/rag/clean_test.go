package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "空文字列", in: "", want: ""},
		{name: "変更なし", in: "plain text", want: "plain text"},
		{name: "連続空白の畳み込み", in: "a   b\t\tc", want: "a b c"},
		{name: "改行もスペースに", in: "line1\nline2\r\nline3", want: "line1 line2 line3"},
		{name: "前後の空白を除去", in: "  padded  ", want: "padded"},
		{name: "制御文字を除去", in: "a\x00b\x1fc", want: "abc"},
		{name: "マルチバイト文字を保持", in: "日本語  テキスト", want: "日本語 テキスト"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanString(tt.in))
		})
	}
}
