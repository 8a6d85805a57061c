// Package quality 提供基于预训练分类器的质量打分/过滤阶段，以及训练语料准备。
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"curator/internal/stage"
	"curator/pkg/contract"
	"curator/pkg/registry"
)

const (
	DefaultField      = "quality_score"
	DefaultLabelField = "quality_label"
)

// Options 控制分类器阶段。PositiveLabel 非空时分数取该标签的条件置信度：
// 预测为正类取 confidence，否则取 1-confidence。
type Options struct {
	Field         string  `json:"field,omitempty"`
	LabelField    string  `json:"label_field,omitempty"`
	PositiveLabel string  `json:"positive_label,omitempty"`
	Threshold     float64 `json:"threshold"`
}

func (o Options) withDefaults() Options {
	if o.Field == "" {
		o.Field = DefaultField
	}
	if o.LabelField == "" {
		o.LabelField = DefaultLabelField
	}
	return o
}

// Score 把置信度转换为写入字段的分数。
func (o Options) Score(p contract.Prediction) float64 {
	if o.PositiveLabel == "" || p.Label == o.PositiveLabel {
		return p.Confidence
	}
	return 1 - p.Confidence
}

type scoreStage struct {
	model contract.Model
	opts  Options
}

func (s *scoreStage) Name() string       { return "classifier_score" }
func (s *scoreStage) Kind() string       { return stage.KindScore }
func (s *scoreStage) Produces() []string { return []string{s.opts.Field, s.opts.LabelField} }

func (s *scoreStage) Apply(ctx context.Context, ex contract.Executor, ds contract.Dataset) (contract.Dataset, error) {
	return ex.MapPartitions(ctx, s.Name(), ds, stage.MapDocs(s.score))
}

func (s *scoreStage) score(ctx context.Context, d contract.Document) (contract.Document, bool, error) {
	p, err := s.model.Infer(ctx, d.Text)
	if err != nil {
		return d, false, fmt.Errorf("classify doc %q: %w", d.ID, err)
	}
	out, err := d.WithField(s.opts.Field, s.opts.Score(p))
	if err != nil {
		return d, false, err
	}
	out, err = out.WithField(s.opts.LabelField, p.Label)
	if err != nil {
		return d, false, err
	}
	return out, true, nil
}

// NewStages 返回 [Score, Filter]；Filter 保留 score > threshold 的文档。
// 模型只读，被所有分区任务共享。
func NewStages(model contract.Model, opts Options) ([]contract.Stage, error) {
	if model == nil {
		return nil, fmt.Errorf("quality: nil model: %w", contract.ErrConstruction)
	}
	opts = opts.withDefaults()
	for _, f := range []string{opts.Field, opts.LabelField} {
		if contract.IsReserved(f) {
			return nil, fmt.Errorf("quality field %q: %w", f, contract.ErrReservedField)
		}
	}
	if opts.Field == opts.LabelField {
		return nil, fmt.Errorf("quality: score and label share field %q: %w", opts.Field, contract.ErrConstruction)
	}
	th := opts.Threshold
	return []contract.Stage{
		&scoreStage{model: model, opts: opts},
		stage.Filter("classifier_filter", opts.Field, func(v float64) bool { return v > th }),
	}, nil
}

// Cache 按 (kind, path, options) 缓存已加载的模型，同一进程只加载一次。
type Cache struct {
	mu        sync.Mutex
	factories map[string]registry.NewClassifier
	models    map[string]contract.Model
}

// NewCache 以给定工厂创建缓存；nil 使用 registry.Classifier。
func NewCache(factories map[string]registry.NewClassifier) *Cache {
	if factories == nil {
		factories = registry.Classifier
	}
	return &Cache{factories: factories, models: map[string]contract.Model{}}
}

// Load 返回缓存的模型或加载之。失败不缓存。
func (c *Cache) Load(ctx context.Context, kind, path string, raw json.RawMessage) (contract.Model, error) {
	f, ok := c.factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown classifier %q: %w", kind, contract.ErrConstruction)
	}
	key := kind + "\x00" + path + "\x00" + string(raw)
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[key]; ok {
		return m, nil
	}
	m, err := f(ctx, path, raw)
	if err != nil {
		if contract.IsFatal(err) {
			return nil, err
		}
		return nil, &contract.ModelLoadError{Path: path, Err: err}
	}
	c.models[key] = m
	return m, nil
}

// Len 返回已缓存的模型数。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}
