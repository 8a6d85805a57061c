// Package pdf 抽取 PDF 文本层：整篇一个文档，或每页一个文档。
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"curator/pkg/contract"
)

// PageField 为逐页模式下的页码字段（从 1 开始）。
const PageField = "page"

type Options struct {
	PerPage bool `json:"per_page,omitempty"`
	// MaxBytes 文件上限，默认 256MiB。
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

type Decoder struct {
	perPage  bool
	maxBytes int64
}

var _ contract.Decoder = (*Decoder)(nil)

func New(opts *Options) *Decoder {
	d := &Decoder{maxBytes: 256 << 20}
	if opts != nil {
		d.perPage = opts.PerPage
		if opts.MaxBytes > 0 {
			d.maxBytes = opts.MaxBytes
		}
	}
	return d
}

func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) (docs []contract.Document, err error) {
	b, err := io.ReadAll(io.LimitReader(r, d.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > d.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", contract.ErrInvalidInput, fileID, d.maxBytes)
	}
	// 解析器对损坏文件可能 panic；归类为输入无效
	defer func() {
		if rec := recover(); rec != nil {
			docs, err = nil, fmt.Errorf("%w: %s: malformed pdf: %v", contract.ErrInvalidInput, fileID, rec)
		}
	}()
	pr, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contract.ErrInvalidInput, fileID, err)
	}
	var whole strings.Builder
	for i := 1; i <= pr.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := pr.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s page %d: %v", contract.ErrInvalidInput, fileID, i, err)
		}
		txt = strings.TrimSpace(txt)
		if txt == "" {
			continue
		}
		if d.perPage {
			doc, err := contract.Document{Text: txt}.WithField(PageField, int64(i))
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			continue
		}
		if whole.Len() > 0 {
			whole.WriteString("\n\n")
		}
		whole.WriteString(txt)
	}
	if !d.perPage && whole.Len() > 0 {
		docs = []contract.Document{{Text: whole.String()}}
	}
	return docs, nil
}
