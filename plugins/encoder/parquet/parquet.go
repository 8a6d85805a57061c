// Package parquet 将分区编码为 Parquet 文件（列：id, text, source_file, fields_json）。
package parquet

import (
	"context"
	"fmt"
	"io"
	"strings"

	pq "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"curator/internal/parquetio"
	"curator/pkg/contract"
)

type Options struct {
	// Compression 为 snappy|gzip|zstd|none，默认 snappy。
	Compression string `json:"compression,omitempty"`
	// RowGroupBytes 行组目标大小，默认 128MiB。
	RowGroupBytes int64 `json:"row_group_bytes,omitempty"`
	Parallel      int64 `json:"parallel,omitempty"`
}

type Encoder struct {
	codec    pq.CompressionCodec
	rowGroup int64
	np       int64
}

var _ contract.Encoder = (*Encoder)(nil)

func New(opts *Options) (*Encoder, error) {
	e := &Encoder{codec: pq.CompressionCodec_SNAPPY, rowGroup: 128 << 20, np: 1}
	if opts == nil {
		return e, nil
	}
	switch strings.ToLower(opts.Compression) {
	case "", "snappy":
	case "gzip":
		e.codec = pq.CompressionCodec_GZIP
	case "zstd":
		e.codec = pq.CompressionCodec_ZSTD
	case "none":
		e.codec = pq.CompressionCodec_UNCOMPRESSED
	default:
		return nil, fmt.Errorf("%w: parquet compression %q", contract.ErrInvalidInput, opts.Compression)
	}
	if opts.RowGroupBytes > 0 {
		e.rowGroup = opts.RowGroupBytes
	}
	if opts.Parallel > 0 {
		e.np = opts.Parallel
	}
	return e, nil
}

func (e *Encoder) Ext() string { return ".parquet" }

// Encode 先在内存中完成文件（页脚需回填），再整体写出。
func (e *Encoder) Encode(ctx context.Context, w io.Writer, docs []contract.Document) error {
	f := parquetio.NewWriter()
	pw, err := writer.NewParquetWriter(f, new(parquetio.Row), e.np)
	if err != nil {
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.CompressionType = e.codec
	pw.RowGroupSize = e.rowGroup
	for i, d := range docs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row, err := parquetio.ToRow(d)
		if err != nil {
			return fmt.Errorf("doc %q: %w", d.ID, err)
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("parquet finalize: %w", err)
	}
	_, err = w.Write(f.Bytes())
	return err
}
