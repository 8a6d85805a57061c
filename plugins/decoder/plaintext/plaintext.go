// Package plaintext 解码纯文本分片。
package plaintext

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"curator/pkg/contract"
)

const (
	ModeFile      = "file"      // 整个文件为一个文档
	ModeLine      = "line"      // 每个非空行一个文档
	ModeParagraph = "paragraph" // 以空行分隔的段落各为一个文档
)

type Options struct {
	Mode string `json:"mode,omitempty"`
	// MaxBytes 文件上限；0 表示不限。
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

type Decoder struct {
	mode     string
	maxBytes int64
}

var _ contract.Decoder = (*Decoder)(nil)

func New(opts *Options) (*Decoder, error) {
	d := &Decoder{mode: ModeFile}
	if opts != nil {
		if opts.Mode != "" {
			d.mode = opts.Mode
		}
		d.maxBytes = opts.MaxBytes
	}
	switch d.mode {
	case ModeFile, ModeLine, ModeParagraph:
	default:
		return nil, fmt.Errorf("%w: plaintext mode %q", contract.ErrInvalidInput, d.mode)
	}
	return d, nil
}

func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Document, error) {
	if d.maxBytes > 0 {
		r = io.LimitReader(r, d.maxBytes+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if d.maxBytes > 0 && int64(len(b)) > d.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", contract.ErrInvalidInput, fileID, d.maxBytes)
	}
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", contract.ErrInvalidInput, fileID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := strings.TrimPrefix(strings.ReplaceAll(string(b), "\r\n", "\n"), "\ufeff")
	return Split(s, d.mode), nil
}

// Split 按模式切分文本；空白片段被忽略。
func Split(s, mode string) []contract.Document {
	var chunks []string
	switch mode {
	case ModeLine:
		chunks = strings.Split(s, "\n")
	case ModeParagraph:
		var cur []string
		for _, ln := range strings.Split(s, "\n") {
			if strings.TrimSpace(ln) == "" {
				if len(cur) > 0 {
					chunks = append(chunks, strings.Join(cur, "\n"))
					cur = nil
				}
				continue
			}
			cur = append(cur, ln)
		}
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n"))
		}
	default:
		chunks = []string{s}
	}
	var out []contract.Document
	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			continue
		}
		out = append(out, contract.Document{Text: c})
	}
	return out
}
