// Package markdown 将 Markdown 文件解码为纯文本文档（整篇或按标题分节）。
package markdown

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"curator/pkg/contract"
	mdt "curator/plugins/transform/markdown"
)

// SectionField 保存分节标题。
const SectionField = "section"

type Options struct {
	// SectionLevel > 0 时在该级别及以上标题处切分为多个文档。
	SectionLevel int  `json:"section_level,omitempty"`
	KeepCode     bool `json:"keep_code,omitempty"`
}

type Decoder struct {
	level    int
	keepCode bool
}

var _ contract.Decoder = (*Decoder)(nil)

func New(opts *Options) (*Decoder, error) {
	d := &Decoder{}
	if opts != nil {
		if opts.SectionLevel < 0 || opts.SectionLevel > 6 {
			return nil, fmt.Errorf("%w: section_level must be in [0,6]", contract.ErrInvalidInput)
		}
		d.level, d.keepCode = opts.SectionLevel, opts.KeepCode
	}
	return d, nil
}

func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(src) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", contract.ErrInvalidInput, fileID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.level == 0 {
		txt := mdt.PlainText(src, d.keepCode)
		if txt == "" {
			return nil, nil
		}
		return []contract.Document{{Text: txt}}, nil
	}
	var out []contract.Document
	for _, s := range mdt.Sections(src, d.level, d.keepCode) {
		doc := contract.Document{Text: s.Text}
		if s.Title != "" {
			if doc, err = doc.WithField(SectionField, s.Title); err != nil {
				return nil, err
			}
		}
		out = append(out, doc)
	}
	return out, nil
}
