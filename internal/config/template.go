package config

import (
	"encoding/json"
	"strings"

	"curator/internal/filters"
)

func f64(v float64) *float64 { return &v }

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// 默认输入为 STDIN（"-"），Writer 输出到 ./out 目录；
// 内联过滤为常见的网页文本规则，分类器默认关闭。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:          []string{"-"},
		Concurrency:     4,
		MaxFailureRatio: d.MaxFailureRatio,
		Logging:         Logging{Level: "info"},
		Components:      d.Components,
		IDs:             IDs{Enabled: boolPtr(true), Prefix: "doc", PartitionCapacity: d.IDs.PartitionCapacity},
		Dedup:           Dedup{Enabled: boolPtr(true)},
		Filters: []filters.Entry{
			{Name: "word_count", Threshold: filters.Threshold{Min: f64(50), Max: f64(100000)}},
			{Name: "mean_word_length", Threshold: filters.Threshold{Min: f64(3), Max: f64(10)}},
			{Name: "symbol_to_word_ratio", Threshold: filters.Threshold{Op: "<=", Value: f64(0.1)}},
			{Name: "repeated_lines_ratio", Threshold: filters.Threshold{Op: "<", Value: f64(0.3)}},
		},
		Classifier: Classifier{Threshold: d.Classifier.Threshold},
		Training: Training{
			Count:     d.Training.Count,
			HighLabel: "hq",
			LowLabel:  "lq",
			Encoder:   d.Training.Encoder,
			Artifact:  d.Training.Artifact,
		},
	}
	cfg.Components.Transforms = []string{"unicode"}
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "extensions": [],
  "include_hidden": false
}`)
	cfg.Options.Decoder = json.RawMessage(`{
  "default": "jsonl",
  "options": {
    "jsonl": {"text_field": "text", "id_field": "id", "skip_invalid": false},
    "text": {"mode": "file"},
    "markdown": {"section_level": 0, "keep_code": false},
    "pdf": {"per_page": false},
    "parquet": {}
  }
}`)
	cfg.Options.Encoder = json.RawMessage(`{
  "drop_fields": [],
  "omit_source_file": false
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": false,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	cfg.Options.Transforms = map[string]json.RawMessage{
		"unicode": json.RawMessage(`{"form": "NFC", "strip_control": true, "collapse_whitespace": false, "trim": true, "drop_empty": true}`),
	}
	return cfg
}

// FilterTemplate 为 --init-config 生成的 filters.yaml 内容（可通过 filter_spec 引用）。
const FilterTemplate = `# 启发式过滤规格。每条规则先打分（写入 field，缺省为 name），再按 threshold 过滤。
# threshold 形式：
#   {min: 1, max: 10}                 闭区间，可省略任一端
#   {min: 1, max: 10, exclusive: true} 开区间
#   {op: "<", value: 0.3}              比较：>= > <= < == !=
filters:
  - name: word_count
    threshold: {min: 50, max: 100000}
  - name: mean_word_length
    threshold: {min: 3, max: 10}
  - name: symbol_to_word_ratio
    params: {symbols: ["#", "..."]}
    threshold: {op: "<=", value: 0.1}
  - name: bullet_lines_ratio
    threshold: {op: "<=", value: 0.9}
  - name: ellipsis_lines_ratio
    threshold: {op: "<=", value: 0.3}
  - name: repeated_lines_ratio
    threshold: {op: "<", value: 0.3}
  - name: top_ngram_char_ratio
    params: {n: 2}
    threshold: {op: "<=", value: 0.2}
  - name: boilerplate_count
    field: boilerplate
    params: {phrases: ["lorem ipsum", "terms of use"]}
    threshold: {op: "==", value: 0}
`

// EnvTemplate 返回 .env 模板内容。优先级：CLI > ENV(.env) > JSON。
func EnvTemplate() string {
	var b strings.Builder
	b.WriteString("# curator .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > JSON\n")
	b.WriteString("# 空值表示未设置；按需填写。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString(EnvPrefix + "CONFIG_FILE=\n")
	b.WriteString(EnvPrefix + "CONFIG_JSON=\n\n")

	section := func(title string, keys ...string) {
		b.WriteString("# " + title + "\n")
		for _, k := range keys {
			b.WriteString(EnvPrefix + k + "=\n")
		}
		b.WriteString("\n")
	}
	section("运行参数覆盖", "INPUTS", "CONCURRENCY", "MAX_FAILURE_RATIO", "LOG_LEVEL")
	section("组件选择", "COMPONENTS_READER", "COMPONENTS_DECODER", "COMPONENTS_ENCODER", "COMPONENTS_WRITER", "COMPONENTS_TRANSFORMS")
	section("组件选项（原样 JSON）", "OPTIONS_READER_JSON", "OPTIONS_DECODER_JSON", "OPTIONS_ENCODER_JSON", "OPTIONS_WRITER_JSON")
	section("ID 与去重", "IDS_ENABLED", "IDS_PREFIX", "IDS_START_INDEX", "IDS_PARTITION_CAPACITY", "DEDUP_ENABLED", "DEDUP_PARTITIONS", "DEDUP_KEEP_FINGERPRINT")
	section("过滤与分类器", "FILTER_SPEC", "CLASSIFIER_KIND", "CLASSIFIER_PATH", "CLASSIFIER_POSITIVE_LABEL", "CLASSIFIER_THRESHOLD")
	section("输出", "OUTPUT_SKIP_EMPTY")
	section("训练语料", "TRAINING_COUNT", "TRAINING_SEED")

	// 对象存储凭据由 SDK 自行读取，不经 CURATOR_ 前缀
	b.WriteString("# 对象存储凭据（writer=s3 / minio）\n")
	b.WriteString("AWS_ACCESS_KEY_ID=\n")
	b.WriteString("AWS_SECRET_ACCESS_KEY=\n")
	b.WriteString("AWS_REGION=\n")
	return b.String()
}
