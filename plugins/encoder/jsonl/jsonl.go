// Package jsonl 将文档编码为 JSON Lines：id, text, source_file 在前，其余字段按键名排序展开。
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sort"

	"curator/pkg/contract"
)

type Options struct {
	// DropFields 输出前移除的字段（例如中间分数）。
	DropFields []string `json:"drop_fields,omitempty"`
	// OmitSourceFile 为 true 时不写出 source_file。
	OmitSourceFile bool `json:"omit_source_file,omitempty"`
}

type Encoder struct {
	drop    map[string]bool
	omitSrc bool
}

var _ contract.Encoder = (*Encoder)(nil)

func New(opts *Options) *Encoder {
	e := &Encoder{drop: map[string]bool{}}
	if opts != nil {
		for _, f := range opts.DropFields {
			e.drop[f] = true
		}
		e.omitSrc = opts.OmitSourceFile
	}
	return e
}

func (e *Encoder) Ext() string { return ".jsonl" }

func (e *Encoder) Encode(ctx context.Context, w io.Writer, docs []contract.Document) error {
	bw := bufio.NewWriter(w)
	for i, d := range docs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := e.encodeOne(bw, d); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (e *Encoder) encodeOne(bw *bufio.Writer, d contract.Document) error {
	bw.WriteByte('{')
	first := true
	put := func(k string, v any) error {
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		kb, _ := json.Marshal(k)
		if !first {
			bw.WriteByte(',')
		}
		first = false
		bw.Write(kb)
		bw.WriteByte(':')
		bw.Write(vb)
		return nil
	}
	if d.ID != "" {
		if err := put(contract.FieldID, d.ID); err != nil {
			return err
		}
	}
	if err := put(contract.FieldText, d.Text); err != nil {
		return err
	}
	if !e.omitSrc && d.SourceFile != "" {
		if err := put(contract.FieldSourceFile, d.SourceFile); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		if !e.drop[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := put(k, d.Fields[k]); err != nil {
			return err
		}
	}
	bw.WriteByte('}')
	return bw.WriteByte('\n')
}
