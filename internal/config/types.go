package config

import (
	"encoding/json"

	"curator/internal/filters"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Inputs      []string `json:"inputs"`
	Concurrency int      `json:"concurrency"`
	// MaxFailureRatio: 跳过分区 / 摄取分区 的上限，[0,1]。
	MaxFailureRatio float64 `json:"max_failure_ratio"`
	Logging         Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`

	IDs   IDs   `json:"ids"`
	Dedup Dedup `json:"dedup"`
	// FilterSpec 为 YAML/JSON 过滤规格文件；与内联 Filters 二选一。
	FilterSpec string          `json:"filter_spec,omitempty"`
	Filters    []filters.Entry `json:"filters,omitempty"`
	// SeededFields 为输入自带、可被过滤直接引用的字段。
	SeededFields []string   `json:"seeded_fields,omitempty"`
	Classifier   Classifier `json:"classifier"`
	Output       Output     `json:"output"`
	Training     Training   `json:"training"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。Transforms 按顺序执行。
type Components struct {
	Reader     string   `json:"reader"`
	Decoder    string   `json:"decoder"`
	Encoder    string   `json:"encoder"`
	Writer     string   `json:"writer"`
	Transforms []string `json:"transforms"`
}

// Options: 各组件的原样 JSON Options；Transforms 以变换名为键。
type Options struct {
	Reader     json.RawMessage            `json:"reader"`
	Decoder    json.RawMessage            `json:"decoder"`
	Encoder    json.RawMessage            `json:"encoder"`
	Writer     json.RawMessage            `json:"writer"`
	Transforms map[string]json.RawMessage `json:"transforms,omitempty"`
}

// IDs: 标识分配。Enabled 为 nil 时沿用下层取值。
type IDs struct {
	Enabled           *bool  `json:"enabled,omitempty"`
	Prefix            string `json:"prefix"`
	StartIndex        int64  `json:"start_index"`
	PartitionCapacity int64  `json:"partition_capacity"`
	Width             int    `json:"width,omitempty"`
}

type Dedup struct {
	Enabled         *bool `json:"enabled,omitempty"`
	Partitions      int   `json:"partitions"`
	KeepFingerprint *bool `json:"keep_fingerprint,omitempty"`
}

// Classifier: Kind 为空表示不启用分类器过滤。
type Classifier struct {
	Kind          string          `json:"kind"`
	Path          string          `json:"path"`
	Options       json.RawMessage `json:"options,omitempty"`
	Field         string          `json:"field,omitempty"`
	LabelField    string          `json:"label_field,omitempty"`
	PositiveLabel string          `json:"positive_label,omitempty"`
	Threshold     float64         `json:"threshold"`
}

// Output: SkipEmpty 为 nil 时沿用下层取值。
type Output struct {
	SkipEmpty *bool  `json:"skip_empty,omitempty"`
	Manifest  string `json:"manifest,omitempty"`
	Report    string `json:"report,omitempty"`
}

// Training: prepare-training 子命令配置。
type Training struct {
	High      []string `json:"high"`
	Low       []string `json:"low"`
	Count     int      `json:"count"`
	Seed      int64    `json:"seed"`
	HighLabel string   `json:"high_label,omitempty"`
	LowLabel  string   `json:"low_label,omitempty"`
	Encoder   string   `json:"encoder,omitempty"`
	Artifact  string   `json:"artifact,omitempty"`
}

// Enabled 返回指针布尔的有效值。
func Enabled(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func boolPtr(b bool) *bool { return &b }
