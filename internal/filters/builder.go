package filters

import (
	"fmt"

	"curator/internal/stage"
	"curator/pkg/contract"
	"curator/pkg/registry"
)

// Builder 把规格解析为阶段序列。Heuristics 缺省为 registry.Heuristic。
type Builder struct {
	Heuristics map[string]registry.NewHeuristic
}

// Build 为每条规格生成 [Score, Filter]，顺序与规格一致。
// 所有校验在处理任何数据之前完成。
func (b Builder) Build(spec Spec) ([]contract.Stage, error) {
	hs := b.Heuristics
	if hs == nil {
		hs = registry.Heuristic
	}
	out := make([]contract.Stage, 0, 2*len(spec.Filters))
	seen := map[string]int{}
	for _, e := range spec.Filters {
		factory, ok := hs[e.Name]
		if !ok {
			return nil, &contract.UnknownFilterError{Name: e.Name}
		}
		pred, err := e.Threshold.Predicate(e.Name)
		if err != nil {
			return nil, err
		}
		raw, err := e.RawParams()
		if err != nil {
			return nil, err
		}
		score, err := factory(raw)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", e.Name, err)
		}
		field := e.FieldName()
		seen[e.Name]++
		label := e.Name
		if n := seen[e.Name]; n > 1 {
			label = fmt.Sprintf("%s#%d", e.Name, n)
		}
		out = append(out,
			stage.FromScoreFunc("score:"+label, field, score),
			stage.Filter("filter:"+label, field, pred),
		)
	}
	return out, nil
}

// BuildPipeline 构造经依赖校验的流水线。
func (b Builder) BuildPipeline(spec Spec) (*stage.Pipeline, error) {
	stages, err := b.Build(spec)
	if err != nil {
		return nil, err
	}
	p, err := stage.NewPipeline(nil, stages...)
	if err != nil {
		return nil, err
	}
	return p.Named("filters"), nil
}
