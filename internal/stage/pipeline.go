package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"curator/pkg/contract"
)

// StageStats 为单阶段执行后的统计。
type StageStats struct {
	Name     string
	Kind     string
	In       int
	Out      int
	Skipped  int // 本阶段隔离的分区内文档数
	Duration time.Duration
	Dataset  contract.Dataset `json:"-"`
}

// Removed 返回本阶段按谓词/去重移除的文档数（不含隔离分区）。
func (s StageStats) Removed() int {
	r := s.In - s.Out - s.Skipped
	if r < 0 {
		return 0
	}
	return r
}

// Observer 在每个阶段完成后回调；返回错误终止流水线。
type Observer func(ctx context.Context, st StageStats) error

// Pipeline 为有序阶段序列；自身也是 Stage，可嵌套组合。
type Pipeline struct {
	name     string
	stages   []contract.Stage
	seeded   []string
	observer Observer
}

var _ contract.Stage = (*Pipeline)(nil)

// NewPipeline 构造阶段序列并做字段依赖校验：
// 每个 Filter 依赖的字段必须由前序阶段产生或位于 seeded 中。
func NewPipeline(seeded []string, stages ...contract.Stage) (*Pipeline, error) {
	p := &Pipeline{name: "pipeline", seeded: append([]string(nil), seeded...)}
	for _, s := range stages {
		if s == nil {
			continue
		}
		p.stages = append(p.stages, s)
	}
	if err := validate(p.seeded, p.stages); err != nil {
		return nil, err
	}
	return p, nil
}

func validate(seeded []string, stages []contract.Stage) error {
	avail := map[string]bool{}
	for _, f := range seeded {
		avail[f] = true
	}
	for _, s := range stages {
		if c, ok := s.(contract.FieldConsumer); ok {
			for _, f := range c.Requires() {
				if !avail[f] {
					return &contract.MissingFieldError{Stage: s.Name(), Field: f}
				}
			}
		}
		if pr, ok := s.(contract.FieldProducer); ok {
			for _, f := range pr.Produces() {
				avail[f] = true
			}
		}
	}
	return nil
}

// Named 返回同一阶段序列的具名副本。
func (p *Pipeline) Named(name string) *Pipeline {
	cp := *p
	cp.name = name
	return &cp
}

// WithObserver 返回挂接了观察者的副本。
func (p *Pipeline) WithObserver(o Observer) *Pipeline {
	cp := *p
	cp.observer = o
	return &cp
}

// Then 顺序拼接另一段阶段序列并重新校验。
func (p *Pipeline) Then(stages ...contract.Stage) (*Pipeline, error) {
	all := append(append([]contract.Stage(nil), p.stages...), stages...)
	np, err := NewPipeline(p.seeded, all...)
	if err != nil {
		return nil, err
	}
	np.name, np.observer = p.name, p.observer
	return np, nil
}

// Stages 返回阶段列表副本。
func (p *Pipeline) Stages() []contract.Stage { return append([]contract.Stage(nil), p.stages...) }

func (p *Pipeline) Name() string { return p.name }

// Produces 汇总各阶段写入的字段。
func (p *Pipeline) Produces() []string {
	var out []string
	for _, s := range p.stages {
		if pr, ok := s.(contract.FieldProducer); ok {
			out = append(out, pr.Produces()...)
		}
	}
	return out
}

// Requires 返回未由内部前序阶段产生的依赖字段。
// seeded 字段同样列出：它们正是需要外部提供的字段。
func (p *Pipeline) Requires() []string {
	avail := map[string]bool{}
	var out []string
	for _, s := range p.stages {
		if c, ok := s.(contract.FieldConsumer); ok {
			for _, f := range c.Requires() {
				if !avail[f] {
					out = append(out, f)
				}
			}
		}
		if pr, ok := s.(contract.FieldProducer); ok {
			for _, f := range pr.Produces() {
				avail[f] = true
			}
		}
	}
	return out
}

// Apply 依序执行各阶段；空序列为恒等。
func (p *Pipeline) Apply(ctx context.Context, ex contract.Executor, ds contract.Dataset) (contract.Dataset, error) {
	cur := ds
	for _, s := range p.stages {
		in := cur.NumDocs()
		skippedBefore := len(cur.Skipped)
		t0 := time.Now()
		next, err := s.Apply(ctx, ex, cur)
		if err != nil {
			return contract.Dataset{}, fmt.Errorf("stage %s: %w", s.Name(), err)
		}
		st := StageStats{Name: s.Name(), Kind: KindOf(s), In: in, Out: next.NumDocs(), Duration: time.Since(t0), Dataset: next}
		for _, f := range next.Skipped[min(skippedBefore, len(next.Skipped)):] {
			st.Skipped += f.Docs
		}
		if p.observer != nil {
			if err := p.observer(ctx, st); err != nil {
				return contract.Dataset{}, fmt.Errorf("stage %s: %w", s.Name(), err)
			}
		}
		cur = next
	}
	return cur, nil
}

// KindOf 返回阶段类别；未声明时为 "stage"。
func KindOf(s contract.Stage) string {
	if k, ok := s.(contract.Kinded); ok {
		return k.Kind()
	}
	return "stage"
}

// Describe 返回阶段序列的可读描述，例如 "unicode(transform) -> min_length(score)"。
func Describe(stages []contract.Stage) string {
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		parts = append(parts, fmt.Sprintf("%s(%s)", s.Name(), KindOf(s)))
	}
	return strings.Join(parts, " -> ")
}
