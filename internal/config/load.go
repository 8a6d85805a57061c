package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"

	"curator/internal/filters"
)

// EnvPrefix 为全部覆盖变量的前缀。
const EnvPrefix = "CURATOR_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Concurrency:     1,
		MaxFailureRatio: 0.1,
		Components: Components{
			Reader:  "fs",
			Decoder: "auto",
			Encoder: "jsonl",
			Writer:  "fs",
		},
		IDs:   IDs{Enabled: boolPtr(true), PartitionCapacity: 1_000_000},
		Dedup: Dedup{Enabled: boolPtr(true)},
		Classifier: Classifier{
			Threshold: 0.5,
		},
		Training: Training{Count: 1000, Encoder: "fasttext", Artifact: "train"},
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
// 数值字段缺省为 -1 哨兵，以区分“未设置”与显式 0。
func LoadJSON(path string, raw []byte) (Config, error) {
	cfg := unset()
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Overlay 返回空覆盖层，供 CLI 等调用方逐项填写后交给 Merge。
func Overlay() Config { return unset() }

// unset 返回所有可为 0 的数值均为 -1 的覆盖层。
func unset() Config {
	return Config{
		MaxFailureRatio: -1,
		IDs:             IDs{StartIndex: -1},
		Classifier:      Classifier{Threshold: -1},
		Training:        Training{Seed: -1},
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	// 0 具有语义（不容忍任何跳过）；-1 视为未覆盖
	if over.MaxFailureRatio >= 0 {
		out.MaxFailureRatio = over.MaxFailureRatio
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Decoder != "" {
		out.Components.Decoder = over.Components.Decoder
	}
	if over.Components.Encoder != "" {
		out.Components.Encoder = over.Components.Encoder
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}
	if over.Components.Transforms != nil {
		out.Components.Transforms = cloneStrings(over.Components.Transforms)
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Decoder) > 0 {
		out.Options.Decoder = cloneRaw(over.Options.Decoder)
	}
	if len(over.Options.Encoder) > 0 {
		out.Options.Encoder = cloneRaw(over.Options.Encoder)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Transforms) > 0 {
		m := make(map[string]json.RawMessage, len(out.Options.Transforms)+len(over.Options.Transforms))
		for k, v := range out.Options.Transforms {
			m[k] = v
		}
		for k, v := range over.Options.Transforms {
			m[k] = cloneRaw(v)
		}
		out.Options.Transforms = m
	}

	// IDs
	if over.IDs.Enabled != nil {
		out.IDs.Enabled = boolPtr(*over.IDs.Enabled)
	}
	if over.IDs.Prefix != "" {
		out.IDs.Prefix = over.IDs.Prefix
	}
	if over.IDs.StartIndex >= 0 {
		out.IDs.StartIndex = over.IDs.StartIndex
	}
	if over.IDs.PartitionCapacity != 0 {
		out.IDs.PartitionCapacity = over.IDs.PartitionCapacity
	}
	if over.IDs.Width != 0 {
		out.IDs.Width = over.IDs.Width
	}

	// Dedup
	if over.Dedup.Enabled != nil {
		out.Dedup.Enabled = boolPtr(*over.Dedup.Enabled)
	}
	if over.Dedup.Partitions != 0 {
		out.Dedup.Partitions = over.Dedup.Partitions
	}
	if over.Dedup.KeepFingerprint != nil {
		out.Dedup.KeepFingerprint = boolPtr(*over.Dedup.KeepFingerprint)
	}

	// 过滤规格：文件与内联互斥，后者覆盖时清除前者
	if over.FilterSpec != "" {
		out.FilterSpec = over.FilterSpec
		out.Filters = nil
	}
	if len(over.Filters) > 0 {
		out.Filters = append([]filters.Entry(nil), over.Filters...)
		if over.FilterSpec == "" {
			out.FilterSpec = ""
		}
	}
	if len(over.SeededFields) > 0 {
		out.SeededFields = cloneStrings(over.SeededFields)
	}

	// Classifier
	c := over.Classifier
	if c.Kind != "" {
		out.Classifier.Kind = c.Kind
	}
	if c.Path != "" {
		out.Classifier.Path = c.Path
	}
	if len(c.Options) > 0 {
		out.Classifier.Options = cloneRaw(c.Options)
	}
	if c.Field != "" {
		out.Classifier.Field = c.Field
	}
	if c.LabelField != "" {
		out.Classifier.LabelField = c.LabelField
	}
	if c.PositiveLabel != "" {
		out.Classifier.PositiveLabel = c.PositiveLabel
	}
	if c.Threshold >= 0 {
		out.Classifier.Threshold = c.Threshold
	}

	// Output
	if over.Output.SkipEmpty != nil {
		out.Output.SkipEmpty = boolPtr(*over.Output.SkipEmpty)
	}
	if over.Output.Manifest != "" {
		out.Output.Manifest = over.Output.Manifest
	}
	if over.Output.Report != "" {
		out.Output.Report = over.Output.Report
	}

	// Training
	tr := over.Training
	if len(tr.High) > 0 {
		out.Training.High = cloneStrings(tr.High)
	}
	if len(tr.Low) > 0 {
		out.Training.Low = cloneStrings(tr.Low)
	}
	if tr.Count != 0 {
		out.Training.Count = tr.Count
	}
	if tr.Seed >= 0 {
		out.Training.Seed = tr.Seed
	}
	if tr.HighLabel != "" {
		out.Training.HighLabel = tr.HighLabel
	}
	if tr.LowLabel != "" {
		out.Training.LowLabel = tr.LowLabel
	}
	if tr.Encoder != "" {
		out.Training.Encoder = tr.Encoder
	}
	if tr.Artifact != "" {
		out.Training.Artifact = tr.Artifact
	}
	return out
}

// envOverlay 为 ENV 覆盖的显式键集合（前缀 CURATOR_）。
type envOverlay struct {
	Inputs          []string `env:"INPUTS" envSeparator:","`
	Concurrency     int      `env:"CONCURRENCY"`
	MaxFailureRatio float64  `env:"MAX_FAILURE_RATIO" envDefault:"-1"`
	LogLevel        string   `env:"LOG_LEVEL"`

	Reader     string   `env:"COMPONENTS_READER"`
	Decoder    string   `env:"COMPONENTS_DECODER"`
	Encoder    string   `env:"COMPONENTS_ENCODER"`
	Writer     string   `env:"COMPONENTS_WRITER"`
	Transforms []string `env:"COMPONENTS_TRANSFORMS" envSeparator:","`

	ReaderJSON  string `env:"OPTIONS_READER_JSON"`
	DecoderJSON string `env:"OPTIONS_DECODER_JSON"`
	EncoderJSON string `env:"OPTIONS_ENCODER_JSON"`
	WriterJSON  string `env:"OPTIONS_WRITER_JSON"`

	IDsEnabled    *bool   `env:"IDS_ENABLED"`
	IDsPrefix     string  `env:"IDS_PREFIX"`
	IDsStart      int64   `env:"IDS_START_INDEX" envDefault:"-1"`
	IDsCapacity   int64   `env:"IDS_PARTITION_CAPACITY"`
	DedupEnabled  *bool   `env:"DEDUP_ENABLED"`
	DedupParts    int     `env:"DEDUP_PARTITIONS"`
	DedupKeepFP   *bool   `env:"DEDUP_KEEP_FINGERPRINT"`
	FilterSpec    string  `env:"FILTER_SPEC"`
	ClsKind       string  `env:"CLASSIFIER_KIND"`
	ClsPath       string  `env:"CLASSIFIER_PATH"`
	ClsPositive   string  `env:"CLASSIFIER_POSITIVE_LABEL"`
	ClsThreshold  float64 `env:"CLASSIFIER_THRESHOLD" envDefault:"-1"`
	SkipEmpty     *bool   `env:"OUTPUT_SKIP_EMPTY"`
	TrainingCount int     `env:"TRAINING_COUNT"`
	TrainingSeed  int64   `env:"TRAINING_SEED" envDefault:"-1"`
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析上述键集合；其他 CURATOR_ 键忽略）。
func EnvOverlay(environ []string) (Config, error) {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			m[k] = v
		}
	}
	var e envOverlay
	if err := env.ParseWithOptions(&e, env.Options{Prefix: EnvPrefix, Environment: m}); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}
	over := unset()
	over.Inputs = e.Inputs
	over.Concurrency = e.Concurrency
	over.MaxFailureRatio = e.MaxFailureRatio
	over.Logging.Level = strings.TrimSpace(e.LogLevel)
	over.Components = Components{
		Reader:  strings.TrimSpace(e.Reader),
		Decoder: strings.TrimSpace(e.Decoder),
		Encoder: strings.TrimSpace(e.Encoder),
		Writer:  strings.TrimSpace(e.Writer),
	}
	if len(e.Transforms) > 0 {
		over.Components.Transforms = splitComma(strings.Join(e.Transforms, ","))
	}
	// 原样 JSON；空值视为未设置，避免清空现有配置
	for _, o := range []struct {
		src string
		dst *json.RawMessage
	}{
		{e.ReaderJSON, &over.Options.Reader},
		{e.DecoderJSON, &over.Options.Decoder},
		{e.EncoderJSON, &over.Options.Encoder},
		{e.WriterJSON, &over.Options.Writer},
	} {
		if s := strings.TrimSpace(o.src); s != "" {
			if !json.Valid([]byte(s)) {
				return Config{}, fmt.Errorf("env overlay: invalid options JSON %q", s)
			}
			*o.dst = json.RawMessage(s)
		}
	}
	over.IDs.Enabled = e.IDsEnabled
	over.IDs.Prefix = e.IDsPrefix
	over.IDs.StartIndex = e.IDsStart
	over.IDs.PartitionCapacity = e.IDsCapacity
	over.Dedup.Enabled = e.DedupEnabled
	over.Dedup.Partitions = e.DedupParts
	over.Dedup.KeepFingerprint = e.DedupKeepFP
	over.FilterSpec = strings.TrimSpace(e.FilterSpec)
	over.Classifier.Kind = strings.TrimSpace(e.ClsKind)
	over.Classifier.Path = strings.TrimSpace(e.ClsPath)
	over.Classifier.PositiveLabel = e.ClsPositive
	over.Classifier.Threshold = e.ClsThreshold
	over.Output.SkipEmpty = e.SkipEmpty
	over.Training.Count = e.TrainingCount
	over.Training.Seed = e.TrainingSeed
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
