// Package markdown 将 Markdown 正文还原为纯文本（保留段落分隔，去除标记）。
package markdown

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"curator/pkg/contract"
)

var md = goldmark.New()

var blankRuns = regexp.MustCompile(`\n{3,}`)

// PlainText 解析 Markdown 并输出纯文本；keepCode=false 时丢弃代码块内容。
func PlainText(src []byte, keepCode bool) string {
	doc := md.Parser().Parse(text.NewReader(src))
	var b strings.Builder
	render(&b, doc, src, keepCode)
	return tidy(b.String())
}

// Section 为按标题切分的一节。
type Section struct {
	Title string
	Text  string
}

// Sections 在级别 <= level 的标题处切分文档；标题之前的内容为无标题节。空节被忽略。
func Sections(src []byte, level int, keepCode bool) []Section {
	doc := md.Parser().Parse(text.NewReader(src))
	var out []Section
	var cur Section
	var b strings.Builder
	flush := func() {
		cur.Text = tidy(b.String())
		if cur.Text != "" {
			out = append(out, cur)
		}
		b.Reset()
	}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level <= level {
			flush()
			var tb strings.Builder
			render(&tb, h, src, keepCode)
			cur = Section{Title: tidy(tb.String())}
		}
		render(&b, n, src, keepCode)
	}
	flush()
	return out
}

func render(b *strings.Builder, root ast.Node, src []byte, keepCode bool) {
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch v := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(v.Segment.Value(src))
				switch {
				case v.HardLineBreak():
					b.WriteByte('\n')
				case v.SoftLineBreak():
					b.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				b.Write(v.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.Write(v.URL(src))
				return ast.WalkSkipChildren, nil
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				if keepCode {
					lines := n.Lines()
					for i := 0; i < lines.Len(); i++ {
						seg := lines.At(i)
						b.Write(seg.Value(src))
					}
				}
				return ast.WalkSkipChildren, nil
			}
			b.WriteString("\n\n")
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.ThematicBreak:
			if !entering {
				b.WriteString("\n\n")
			}
		case *ast.TextBlock:
			if !entering {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
}

// tidy 去除行尾空白并压缩多余空行。
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t")
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// Options 为 markdown 变换配置。
type Options struct {
	KeepCode bool `json:"keep_code,omitempty"`
	// Extensions 仅处理 source_file 扩展名在列表中的文档；为空时处理全部。
	Extensions []string `json:"extensions,omitempty"`
	// DropEmpty 为 true 时丢弃去标记后为空的文档。
	DropEmpty bool `json:"drop_empty,omitempty"`
}

type Transform struct {
	keepCode  bool
	exts      map[string]bool
	dropEmpty bool
}

var _ contract.Transformer = (*Transform)(nil)

func New(opts *Options) *Transform {
	t := &Transform{exts: map[string]bool{}}
	if opts == nil {
		return t
	}
	t.keepCode, t.dropEmpty = opts.KeepCode, opts.DropEmpty
	for _, e := range opts.Extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		t.exts[e] = true
	}
	return t
}

func (t *Transform) Transform(_ context.Context, d contract.Document) (contract.Document, bool, error) {
	if len(t.exts) > 0 && !t.exts[strings.ToLower(path.Ext(d.SourceFile))] {
		return d, true, nil
	}
	d.Text = PlainText([]byte(d.Text), t.keepCode)
	if t.dropEmpty && d.Text == "" {
		return d, false, nil
	}
	return d, true, nil
}
