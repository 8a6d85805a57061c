// Package parquetio 提供 parquet-go 所需的内存 ParquetFile 以及文档行模式。
package parquetio

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sort"

	"github.com/xitongsys/parquet-go/source"

	"curator/pkg/contract"
)

// File 为共享底层字节的内存 ParquetFile；Open 返回独立读位置的新句柄。
type File struct {
	buf *[]byte
	off int64
}

var _ source.ParquetFile = (*File)(nil)

// NewReader 以只读方式包装 b。
func NewReader(b []byte) *File { return &File{buf: &b} }

// NewWriter 返回空的可写文件。
func NewWriter() *File { b := []byte{}; return &File{buf: &b} }

// Bytes 返回当前内容。
func (f *File) Bytes() []byte { return *f.buf }

func (f *File) Open(string) (source.ParquetFile, error)   { return &File{buf: f.buf}, nil }
func (f *File) Create(string) (source.ParquetFile, error) { return NewWriter(), nil }
func (f *File) Close() error                              { return nil }

func (f *File) Read(p []byte) (int, error) {
	data := *f.buf
	if f.off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[f.off:])
	f.off += int64(n)
	return n, nil
}

func (f *File) Write(p []byte) (int, error) {
	data := *f.buf
	end := f.off + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[f.off:], p)
	*f.buf = data
	f.off = end
	return len(p), nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.off
	case io.SeekEnd:
		base = int64(len(*f.buf))
	default:
		return 0, errors.New("parquetio: invalid whence")
	}
	pos := base + offset
	if pos < 0 {
		return 0, errors.New("parquetio: negative position")
	}
	f.off = pos
	return pos, nil
}

// Row 为文档的列式表示；非保留字段以 JSON 对象存入 fields_json。
type Row struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Text       string `parquet:"name=text, type=BYTE_ARRAY, convertedtype=UTF8"`
	SourceFile string `parquet:"name=source_file, type=BYTE_ARRAY, convertedtype=UTF8"`
	FieldsJSON string `parquet:"name=fields_json, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ToRow 将文档转换为行；字段按键排序编码，输出稳定。
func ToRow(d contract.Document) (Row, error) {
	r := Row{ID: d.ID, Text: d.Text, SourceFile: d.SourceFile}
	if len(d.Fields) == 0 {
		return r, nil
	}
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, err := json.Marshal(d.Fields[k])
		if err != nil {
			return Row{}, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	r.FieldsJSON = b.String()
	return r, nil
}

// FromRow 还原文档；整数字段还原为 int64。
func FromRow(r Row) (contract.Document, error) {
	d := contract.Document{ID: r.ID, Text: r.Text, SourceFile: r.SourceFile}
	if r.FieldsJSON == "" {
		return d, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(r.FieldsJSON)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return contract.Document{}, err
	}
	for k, v := range m {
		if v == nil {
			continue
		}
		var err error
		if d, err = d.WithField(k, scalar(v)); err != nil {
			return contract.Document{}, err
		}
	}
	return d, nil
}

func scalar(v any) any {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	}
	switch v.(type) {
	case string, bool, float64:
		return v
	}
	b, _ := json.Marshal(v)
	return string(b)
}
