// Package parquet 解码 Parquet 分片。
//
// 两种模式：行模式读取本工具写出的文档列（id, text, source_file, fields_json）；
// 列模式按列序号读取外部数据集的正文列（可选 id 列）。
package parquet

import (
	"context"
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go/reader"

	"curator/internal/parquetio"
	"curator/pkg/contract"
)

type Options struct {
	// TextColumn >= 0 时启用列模式，值为正文列序号。
	TextColumn *int64 `json:"text_column,omitempty"`
	// IDColumn 列模式下的 id 列序号；缺省不读取。
	IDColumn *int64 `json:"id_column,omitempty"`
	Parallel int64  `json:"parallel,omitempty"`
}

type Decoder struct {
	textCol *int64
	idCol   *int64
	np      int64
}

var _ contract.Decoder = (*Decoder)(nil)

func New(opts *Options) (*Decoder, error) {
	d := &Decoder{np: 1}
	if opts == nil {
		return d, nil
	}
	if opts.TextColumn != nil && *opts.TextColumn < 0 {
		return nil, fmt.Errorf("%w: text_column must be >= 0", contract.ErrInvalidInput)
	}
	if opts.IDColumn != nil && opts.TextColumn == nil {
		return nil, fmt.Errorf("%w: id_column requires text_column", contract.ErrInvalidInput)
	}
	d.textCol, d.idCol = opts.TextColumn, opts.IDColumn
	if opts.Parallel > 0 {
		d.np = opts.Parallel
	}
	return d, nil
}

func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) (docs []contract.Document, err error) {
	// 页脚/thrift 解析对损坏文件可能 panic
	defer func() {
		if rec := recover(); rec != nil {
			docs, err = nil, fmt.Errorf("%w: %s: malformed parquet: %v", contract.ErrInvalidInput, fileID, rec)
		}
	}()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.textCol != nil {
		return d.decodeColumns(fileID, b)
	}
	return d.decodeRows(fileID, b)
}

func (d *Decoder) decodeRows(fileID contract.FileID, b []byte) ([]contract.Document, error) {
	pr, err := reader.NewParquetReader(parquetio.NewReader(b), new(parquetio.Row), d.np)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contract.ErrInvalidInput, fileID, err)
	}
	defer pr.ReadStop()
	n := int(pr.GetNumRows())
	rows := make([]parquetio.Row, n)
	if n > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", contract.ErrInvalidInput, fileID, err)
		}
	}
	out := make([]contract.Document, 0, n)
	for i, row := range rows {
		doc, err := parquetio.FromRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", contract.ErrInvalidInput, fileID, i, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func (d *Decoder) decodeColumns(fileID contract.FileID, b []byte) ([]contract.Document, error) {
	pr, err := reader.NewParquetColumnReader(parquetio.NewReader(b), d.np)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contract.ErrInvalidInput, fileID, err)
	}
	defer pr.ReadStop()
	n := pr.GetNumRows()
	texts, _, _, err := pr.ReadColumnByIndex(*d.textCol, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %s column %d: %v", contract.ErrInvalidInput, fileID, *d.textCol, err)
	}
	var ids []interface{}
	if d.idCol != nil {
		if ids, _, _, err = pr.ReadColumnByIndex(*d.idCol, n); err != nil {
			return nil, fmt.Errorf("%w: %s column %d: %v", contract.ErrInvalidInput, fileID, *d.idCol, err)
		}
	}
	out := make([]contract.Document, 0, len(texts))
	for i, v := range texts {
		s, ok := v.(string)
		if !ok {
			// 空值或非字节数组列
			continue
		}
		doc := contract.Document{Text: s}
		if i < len(ids) && ids[i] != nil {
			doc.ID = fmt.Sprint(ids[i])
		}
		out = append(out, doc)
	}
	return out, nil
}
