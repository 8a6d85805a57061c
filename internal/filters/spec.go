// Package filters 把声明式过滤规格翻译为 Score+Filter 阶段对。
package filters

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"curator/pkg/contract"
)

// Spec 为过滤流水线规格：有序、加载后不可变。
type Spec struct {
	Filters []Entry `yaml:"filters" json:"filters"`
}

// Entry 为一条过滤规格。Field 缺省为 Name。
type Entry struct {
	Name      string         `yaml:"name" json:"name"`
	Field     string         `yaml:"field,omitempty" json:"field,omitempty"`
	Params    map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Threshold Threshold      `yaml:"threshold" json:"threshold"`
}

// FieldName 返回该条目写入与比较的字段。
func (e Entry) FieldName() string {
	if e.Field != "" {
		return e.Field
	}
	return e.Name
}

// RawParams 以 JSON 形式返回参数，供注册表严格解码。
func (e Entry) RawParams() (json.RawMessage, error) {
	if len(e.Params) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(e.Params)
	if err != nil {
		return nil, fmt.Errorf("filter %q params: %v: %w", e.Name, err, contract.ErrConstruction)
	}
	return b, nil
}

// Threshold 支持两种形式：区间 {min, max, exclusive} 或比较 {op, value}。
type Threshold struct {
	Min       *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Exclusive bool     `yaml:"exclusive,omitempty" json:"exclusive,omitempty"`
	Op        string   `yaml:"op,omitempty" json:"op,omitempty"`
	Value     *float64 `yaml:"value,omitempty" json:"value,omitempty"`
}

// Predicate 校验阈值并返回判定函数。NaN 分数从不通过。
func (t Threshold) Predicate(filter string) (func(float64) bool, error) {
	bad := func(reason string) error { return &contract.InvalidThresholdError{Filter: filter, Reason: reason} }
	for _, p := range []*float64{t.Min, t.Max, t.Value} {
		if p != nil && math.IsNaN(*p) {
			return nil, bad("NaN bound")
		}
	}
	if t.Op != "" || t.Value != nil {
		if t.Min != nil || t.Max != nil || t.Exclusive {
			return nil, bad("op/value cannot be combined with min/max")
		}
		if t.Value == nil {
			return nil, bad("op requires value")
		}
		v := *t.Value
		switch t.Op {
		case ">=":
			return func(x float64) bool { return x >= v }, nil
		case ">":
			return func(x float64) bool { return x > v }, nil
		case "<=":
			return func(x float64) bool { return x <= v }, nil
		case "<":
			return func(x float64) bool { return x < v }, nil
		case "==":
			return func(x float64) bool { return x == v }, nil
		case "!=":
			return func(x float64) bool { return !math.IsNaN(x) && x != v }, nil
		case "":
			return nil, bad("value requires op")
		default:
			return nil, bad(fmt.Sprintf("unknown op %q", t.Op))
		}
	}
	if t.Min == nil && t.Max == nil {
		return nil, bad("no bound")
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if t.Min != nil {
		lo = *t.Min
	}
	if t.Max != nil {
		hi = *t.Max
	}
	if lo > hi {
		return nil, bad(fmt.Sprintf("min %v > max %v", lo, hi))
	}
	if t.Exclusive {
		if lo == hi {
			return nil, bad("empty exclusive range")
		}
		return func(x float64) bool {
			return (t.Min == nil || x > lo) && (t.Max == nil || x < hi)
		}, nil
	}
	return func(x float64) bool { return x >= lo && x <= hi }, nil
}

// Parse 解析 YAML（JSON 是其子集）。未知键报错。
func Parse(b []byte) (Spec, error) {
	var s Spec
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Spec{}, fmt.Errorf("filter spec: %v: %w", err, contract.ErrConstruction)
	}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// Validate 检查条目名与字段名；内联规格（配置文件中的 filters）同样经过此处。
func (s Spec) Validate() error {
	for i, e := range s.Filters {
		if e.Name == "" {
			return fmt.Errorf("filter spec: entry %d has no name: %w", i, contract.ErrConstruction)
		}
		if contract.IsReserved(e.FieldName()) {
			return fmt.Errorf("filter %q field %q: %w", e.Name, e.FieldName(), contract.ErrReservedField)
		}
	}
	return nil
}

// Load 读取规格文件。
func Load(path string) (Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("filter spec %s: %v: %w", path, err, contract.ErrConstruction)
	}
	return Parse(b)
}
