package contract

import "fmt"

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// 保留字段名：Fields 的键不得与之冲突。
const (
	FieldID         = "id"
	FieldText       = "text"
	FieldSourceFile = "source_file"
)

// IsReserved 判断 name 是否为保留字段名。
func IsReserved(name string) bool {
	switch name {
	case FieldID, FieldText, FieldSourceFile:
		return true
	}
	return false
}

// Fields: 阶段累积的标量字段（分数、标签等）。
// 值类型限定为 string/float64/int64/bool。
type Fields map[string]any

// Document: 原子文档记录。
// 约束：
//  1. ID 为空表示尚未分配；
//  2. Text 仅允许由 Transform 阶段改写；
//  3. Fields 键不与保留字段名冲突。
type Document struct {
	ID         string
	Text       string
	SourceFile string
	Fields     Fields
}

// Field 返回字段值。
func (d Document) Field(name string) (any, bool) {
	if d.Fields == nil {
		return nil, false
	}
	v, ok := d.Fields[name]
	return v, ok
}

// Number 以 float64 读取数值字段；非数值返回 ok=false。
func (d Document) Number(name string) (float64, bool) {
	v, ok := d.Field(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// WithField 返回设置了 name=v 的副本；Fields 写时复制，不影响原记录。
func (d Document) WithField(name string, v any) (Document, error) {
	if IsReserved(name) {
		return d, fmt.Errorf("%w: %q", ErrReservedField, name)
	}
	sv, err := scalar(v)
	if err != nil {
		return d, fmt.Errorf("field %q: %w", name, err)
	}
	out := d
	out.Fields = make(Fields, len(d.Fields)+1)
	for k, x := range d.Fields {
		out.Fields[k] = x
	}
	out.Fields[name] = sv
	return out, nil
}

// WithoutFields 返回删除了指定字段的副本。
func (d Document) WithoutFields(names ...string) Document {
	if len(d.Fields) == 0 {
		return d
	}
	out := d
	out.Fields = make(Fields, len(d.Fields))
	for k, x := range d.Fields {
		out.Fields[k] = x
	}
	for _, n := range names {
		delete(out.Fields, n)
	}
	if len(out.Fields) == 0 {
		out.Fields = nil
	}
	return out
}

// scalar 将常见数值类型归一为 int64/float64。
func scalar(v any) (any, error) {
	switch x := v.(type) {
	case string, float64, int64, bool:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("%w: unsupported field type %T", ErrInvalidInput, v)
	}
}

// Partition: 并行处理的原子单位。Index 为规划期分区号（按摄取顺序，跨重跑稳定），
// Label 为 source_file 分组标签。分区内顺序在 shuffle 前保持稳定。
type Partition struct {
	Index int
	Label string
	Docs  []Document
}

// PartitionFailure: 被隔离的失败分区。
type PartitionFailure struct {
	Stage string
	Index int
	Label string
	// Docs: 随分区一同丢弃的文档数。
	Docs int
	Err  error
}

// Dataset: 分区集合。无隐式缓存；每个阶段返回新的 Dataset。
// Skipped 跨阶段累积。
type Dataset struct {
	Partitions []Partition
	Skipped    []PartitionFailure
}

// NumDocs 返回所有分区的文档总数。
func (ds Dataset) NumDocs() int {
	n := 0
	for _, p := range ds.Partitions {
		n += len(p.Docs)
	}
	return n
}
