// Package stage 提供三类阶段（Transform/Score/Filter）的构造器与阶段序列组合。
package stage

import (
	"context"
	"fmt"

	"curator/pkg/contract"
)

const (
	KindTransform = "transform"
	KindScore     = "score"
	KindFilter    = "filter"
)

// DocFunc 为分区内逐文档处理函数；keep=false 丢弃该文档。
type DocFunc func(ctx context.Context, d contract.Document) (out contract.Document, keep bool, err error)

// MapDocs 将逐文档函数提升为分区函数；保持文档相对顺序。
func MapDocs(fn DocFunc) contract.PartitionFunc {
	return func(ctx context.Context, p contract.Partition) (contract.Partition, error) {
		out := contract.Partition{Index: p.Index, Label: p.Label, Docs: make([]contract.Document, 0, len(p.Docs))}
		for _, d := range p.Docs {
			if err := ctx.Err(); err != nil {
				return contract.Partition{}, err
			}
			nd, keep, err := fn(ctx, d)
			if err != nil {
				return contract.Partition{}, err
			}
			if keep {
				out.Docs = append(out.Docs, nd)
			}
		}
		return out, nil
	}
}

// ---- Transform ----

type transformStage struct {
	name string
	fn   DocFunc
}

// Transform 构造改写阶段：可修改 text 或丢弃文档。
func Transform(name string, fn DocFunc) contract.Stage {
	return &transformStage{name: name, fn: fn}
}

// FromTransformer 将 Transformer 插件包装为阶段。
func FromTransformer(name string, t contract.Transformer) contract.Stage {
	return Transform(name, t.Transform)
}

func (s *transformStage) Name() string { return s.name }
func (s *transformStage) Kind() string { return KindTransform }
func (s *transformStage) Apply(ctx context.Context, ex contract.Executor, ds contract.Dataset) (contract.Dataset, error) {
	return ex.MapPartitions(ctx, s.name, ds, MapDocs(s.fn))
}

// ---- Score ----

// ScoreDoc 为单文档打分函数。
type ScoreDoc func(ctx context.Context, d contract.Document) (float64, error)

type scoreStage struct {
	name  string
	field string
	fn    ScoreDoc
}

// Score 构造打分阶段：仅写入 field，不改变文档数量与顺序。
func Score(name, field string, fn ScoreDoc) contract.Stage {
	return &scoreStage{name: name, field: field, fn: fn}
}

// FromScoreFunc 以文本打分函数构造打分阶段。
func FromScoreFunc(name, field string, fn contract.ScoreFunc) contract.Stage {
	return Score(name, field, func(_ context.Context, d contract.Document) (float64, error) { return fn(d.Text) })
}

func (s *scoreStage) Name() string       { return s.name }
func (s *scoreStage) Kind() string       { return KindScore }
func (s *scoreStage) Produces() []string { return []string{s.field} }
func (s *scoreStage) Apply(ctx context.Context, ex contract.Executor, ds contract.Dataset) (contract.Dataset, error) {
	return ex.MapPartitions(ctx, s.name, ds, MapDocs(func(ctx context.Context, d contract.Document) (contract.Document, bool, error) {
		v, err := s.fn(ctx, d)
		if err != nil {
			return d, false, fmt.Errorf("score %s doc %q: %w", s.name, d.ID, err)
		}
		nd, err := d.WithField(s.field, v)
		return nd, true, err
	}))
}

// ---- Filter ----

type filterStage struct {
	name  string
	field string
	pred  func(float64) bool
}

// Filter 构造过滤阶段：保留 pred(doc[field]) 为真的文档。
// 字段缺失为构造类错误（致命）；字段非数值为分区错误。
func Filter(name, field string, pred func(float64) bool) contract.Stage {
	return &filterStage{name: name, field: field, pred: pred}
}

func (s *filterStage) Name() string       { return s.name }
func (s *filterStage) Kind() string       { return KindFilter }
func (s *filterStage) Requires() []string { return []string{s.field} }
func (s *filterStage) Apply(ctx context.Context, ex contract.Executor, ds contract.Dataset) (contract.Dataset, error) {
	return ex.MapPartitions(ctx, s.name, ds, MapDocs(func(ctx context.Context, d contract.Document) (contract.Document, bool, error) {
		raw, ok := d.Field(s.field)
		if !ok {
			return d, false, &contract.MissingFieldError{Stage: s.name, Field: s.field, DocID: d.ID, Exec: true}
		}
		v, ok := d.Number(s.field)
		if !ok {
			return d, false, fmt.Errorf("%w: filter %s field %q is %T", contract.ErrInvalidInput, s.name, s.field, raw)
		}
		return d, s.pred(v), nil
	}))
}
