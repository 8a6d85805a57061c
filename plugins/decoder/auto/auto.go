// Package auto 按文件扩展名把解码分派给具体 Decoder。
package auto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"curator/pkg/contract"
)

// Extensions 为扩展名到解码器名称的默认映射。
var Extensions = map[string]string{
	".jsonl":    "jsonl",
	".ndjson":   "jsonl",
	".txt":      "text",
	".text":     "text",
	".md":       "markdown",
	".markdown": "markdown",
	".pdf":      "pdf",
	".parquet":  "parquet",
}

// Options: Default 为未知扩展名使用的解码器（空则报错），Options 为各解码器的原样选项。
type Options struct {
	Default string                     `json:"default,omitempty"`
	Options map[string]json.RawMessage `json:"options,omitempty"`
}

type Decoder struct {
	byName   map[string]contract.Decoder
	fallback string
}

var _ contract.Decoder = (*Decoder)(nil)

// New 以已构造的解码器集合创建分派器。
func New(byName map[string]contract.Decoder, fallback string) (*Decoder, error) {
	if fallback != "" {
		if _, ok := byName[fallback]; !ok {
			return nil, fmt.Errorf("auto decoder: default %q not available", fallback)
		}
	}
	return &Decoder{byName: byName, fallback: fallback}, nil
}

// For 返回文件应使用的解码器名称。
func (d *Decoder) For(fileID contract.FileID) (string, bool) {
	name, ok := Extensions[strings.ToLower(path.Ext(string(fileID)))]
	if ok {
		if _, have := d.byName[name]; have {
			return name, true
		}
	}
	if d.fallback != "" {
		return d.fallback, true
	}
	return "", false
}

func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Document, error) {
	name, ok := d.For(fileID)
	if !ok {
		return nil, fmt.Errorf("%s: no decoder for extension (have %s): %w", fileID, strings.Join(d.names(), ","), contract.ErrInvalidInput)
	}
	return d.byName[name].Decode(ctx, fileID, r)
}

func (d *Decoder) names() []string {
	out := make([]string, 0, len(d.byName))
	for n := range d.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
