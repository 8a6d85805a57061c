// Package fasttext 输出 fastText 监督训练语料：每行 "__label__<标签> <单行正文>"。
package fasttext

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"curator/pkg/contract"
)

// LabelField 为默认的标签字段名。
const LabelField = "__label__"

// LabelPrefix 为 fastText 标签前缀。
const LabelPrefix = "__label__"

type Options struct {
	LabelField string `json:"label_field,omitempty"`
	Lowercase  bool   `json:"lowercase,omitempty"`
}

type Encoder struct {
	field string
	lower bool
}

var _ contract.Encoder = (*Encoder)(nil)

func New(opts *Options) *Encoder {
	e := &Encoder{field: LabelField}
	if opts != nil {
		if opts.LabelField != "" {
			e.field = opts.LabelField
		}
		e.lower = opts.Lowercase
	}
	return e
}

func (e *Encoder) Ext() string { return ".txt" }

// Line 渲染单个文档；标签中的空白替换为下划线，正文折叠为单行。
func (e *Encoder) Line(d contract.Document) (string, error) {
	v, ok := d.Field(e.field)
	if !ok {
		return "", fmt.Errorf("%w: document %q has no %s", contract.ErrInvalidInput, d.ID, e.field)
	}
	label := strings.Join(strings.Fields(fmt.Sprint(v)), "_")
	label = strings.TrimPrefix(label, LabelPrefix)
	if label == "" {
		return "", fmt.Errorf("%w: document %q has empty label", contract.ErrInvalidInput, d.ID)
	}
	text := strings.Join(strings.Fields(d.Text), " ")
	if e.lower {
		text = strings.ToLower(text)
	}
	return LabelPrefix + label + " " + text, nil
}

func (e *Encoder) Encode(ctx context.Context, w io.Writer, docs []contract.Document) error {
	bw := bufio.NewWriter(w)
	for i, d := range docs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		ln, err := e.Line(d)
		if err != nil {
			return err
		}
		bw.WriteString(ln)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
