package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/pkg/contract"
)

// UT-MD-01: 去除标记，保留段落
func TestPlainText(t *testing.T) {
	src := "# Title\n\nSome *emphasis* and `code` with a [link](http://x.y).\nNext line.\n\n- one\n- two\n\n```go\nfmt.Println(1)\n```\n\n<div>html</div>\n\n<https://auto.link>\n"
	got := PlainText([]byte(src), false)
	assert.Equal(t, "Title\n\nSome emphasis and code with a link. Next line.\n\none\ntwo\n\nhttps://auto.link", got)

	withCode := PlainText([]byte(src), true)
	assert.Contains(t, withCode, "fmt.Println(1)")
	assert.Equal(t, "", PlainText(nil, false))
}

func TestTransform(t *testing.T) {
	tr := New(&Options{Extensions: []string{"md"}, DropEmpty: true})
	out, keep, err := tr.Transform(context.Background(), contract.Document{Text: "**bold**", SourceFile: "a/b.MD"})
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "bold", out.Text)

	out, keep, err = tr.Transform(context.Background(), contract.Document{Text: "**raw**", SourceFile: "a.txt"})
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, "**raw**", out.Text, "非 md 文档不处理")

	_, keep, err = tr.Transform(context.Background(), contract.Document{Text: "<br>", SourceFile: "x.md"})
	require.NoError(t, err)
	assert.False(t, keep, "空文档被丢弃")
}

func TestSections(t *testing.T) {
	src := "intro text\n\n# A\n\npara a\n\n## A.1\n\nsub\n\n# B\n\npara b\n\n# Empty\n"
	secs := Sections([]byte(src), 1, false)
	require.Len(t, secs, 4)
	assert.Equal(t, Section{Title: "", Text: "intro text"}, secs[0])
	assert.Equal(t, "A", secs[1].Title)
	assert.Equal(t, "A\n\npara a\n\nA.1\n\nsub", secs[1].Text)
	assert.Equal(t, "B", secs[2].Title)
	assert.Equal(t, Section{Title: "Empty", Text: "Empty"}, secs[3])

	assert.Len(t, Sections([]byte(src), 2, false), 5)
}
