// Package jsonl 解码 JSON Lines 分片：每行一个对象，即一个文档。
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"curator/pkg/contract"
)

// Options 为 jsonl 解码配置。
type Options struct {
	// TextField 正文字段名，默认 "text"。
	TextField string `json:"text_field,omitempty"`
	// IDField 已有标识字段名，默认 "id"；值可为字符串或数字。
	IDField string `json:"id_field,omitempty"`
	// SkipInvalid 为 true 时跳过无法解析的行，否则整个分片失败。
	SkipInvalid bool `json:"skip_invalid,omitempty"`
	// MaxLineBytes 单行上限，默认 16MiB。
	MaxLineBytes int `json:"max_line_bytes,omitempty"`
}

type Decoder struct {
	textField string
	idField   string
	skip      bool
	maxLine   int
}

var _ contract.Decoder = (*Decoder)(nil)

func New(opts *Options) *Decoder {
	d := &Decoder{textField: contract.FieldText, idField: contract.FieldID, maxLine: 16 << 20}
	if opts == nil {
		return d
	}
	if opts.TextField != "" {
		d.textField = opts.TextField
	}
	if opts.IDField != "" {
		d.idField = opts.IDField
	}
	if opts.MaxLineBytes > 0 {
		d.maxLine = opts.MaxLineBytes
	}
	d.skip = opts.SkipInvalid
	return d
}

func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Document, error) {
	sc := bufio.NewScanner(r)
	// Scanner 的上限取 max 与 cap(buf) 的较大者，初始缓冲不得超过 maxLine。
	sc.Buffer(make([]byte, 0, min(64*1024, d.maxLine)), d.maxLine)
	var out []contract.Document
	line := 0
	for sc.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		doc, err := d.decodeLine(b)
		if err != nil {
			if d.skip {
				continue
			}
			return nil, fmt.Errorf("%s:%d: %w", fileID, line, err)
		}
		out = append(out, doc)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", fileID, err)
	}
	return out, nil
}

func (d *Decoder) decodeLine(b []byte) (contract.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return contract.Document{}, fmt.Errorf("%w: %v", contract.ErrInvalidInput, err)
	}
	if dec.More() {
		return contract.Document{}, fmt.Errorf("%w: trailing data", contract.ErrInvalidInput)
	}
	text, ok := obj[d.textField].(string)
	if !ok {
		return contract.Document{}, fmt.Errorf("%w: field %q missing or not a string", contract.ErrInvalidInput, d.textField)
	}
	doc := contract.Document{Text: text}
	switch v := obj[d.idField].(type) {
	case string:
		doc.ID = v
	case json.Number:
		doc.ID = v.String()
	}
	if s, ok := obj[contract.FieldSourceFile].(string); ok {
		doc.SourceFile = s
	}
	for k, v := range obj {
		if k == d.textField || k == d.idField || contract.IsReserved(k) || v == nil {
			continue
		}
		nd, err := doc.WithField(k, Scalar(v))
		if err != nil {
			return contract.Document{}, err
		}
		doc = nd
	}
	return doc, nil
}

// Scalar 将 JSON 值归一为字段标量：整数→int64，其余数字→float64，对象/数组→紧凑 JSON 字符串。
func Scalar(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case string, bool, float64, int64:
		return x
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
