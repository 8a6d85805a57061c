package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"curator/internal/curate"
	"curator/internal/dedup"
	"curator/internal/diag"
	"curator/internal/filters"
	"curator/internal/ident"
	"curator/internal/quality"
	"curator/internal/stage"
	"curator/pkg/contract"
	"curator/pkg/registry"
)

// Validate 对最小必要边界做静态校验。失败一律归入 ErrConstruction。
func Validate(cfg Config) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("%v: %w", err, contract.ErrConstruction)
	}
	return nil
}

func validate(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	if err := validateRoots(cfg.Inputs); err != nil {
		return err
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.MaxFailureRatio < 0 || cfg.MaxFailureRatio > 1 {
		return fmt.Errorf("config: max_failure_ratio %v out of [0,1]", cfg.MaxFailureRatio)
	}
	if err := validateComponents(cfg); err != nil {
		return err
	}
	for _, t := range cfg.Components.Transforms {
		if registry.Transform[t] == nil {
			return fmt.Errorf("config: transform %q not registered", t)
		}
	}
	for k := range cfg.Options.Transforms {
		if !contains(cfg.Components.Transforms, k) {
			return fmt.Errorf("config: options for transform %q which is not enabled", k)
		}
	}
	if cfg.FilterSpec != "" && len(cfg.Filters) > 0 {
		return errors.New("config: filter_spec and filters are mutually exclusive")
	}
	for _, f := range cfg.SeededFields {
		if contract.IsReserved(f) {
			return fmt.Errorf("config: seeded field %q is reserved", f)
		}
	}
	if c := cfg.Classifier; c.Kind != "" {
		if registry.Classifier[c.Kind] == nil {
			return fmt.Errorf("config: classifier %q not registered", c.Kind)
		}
		if strings.TrimSpace(c.Path) == "" {
			return errors.New("config: classifier path not set")
		}
	}
	return nil
}

func validateRoots(roots []string) error {
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(roots) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	return nil
}

func validateComponents(cfg Config) error {
	// 组件名若为空，使用默认名（由 Defaults() 提供）。
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, d.Decoder); registry.Decoder[name] == nil {
		return fmt.Errorf("config: decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Encoder, d.Encoder); registry.Encoder[name] == nil {
		return fmt.Errorf("config: encoder %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。所有阶段在读取任何输入前构造完成；
// 严格 Options 解析在 registry （工厂）层进行，此处只传 raw JSON。
func Assemble(ctx context.Context, cfg Config, logger *diag.Logger) (curate.Components, curate.Settings, error) {
	if err := Validate(cfg); err != nil {
		return curate.Components{}, curate.Settings{}, err
	}
	comp, err := assembleIO(cfg, effName(cfg.Components.Encoder, Defaults().Components.Encoder), cfg.Options.Encoder)
	if err != nil {
		return curate.Components{}, curate.Settings{}, err
	}

	if Enabled(cfg.IDs.Enabled, true) {
		a, err := ident.New(ident.Options{
			Prefix:            cfg.IDs.Prefix,
			StartIndex:        cfg.IDs.StartIndex,
			PartitionCapacity: cfg.IDs.PartitionCapacity,
			Width:             cfg.IDs.Width,
		})
		if err != nil {
			return curate.Components{}, curate.Settings{}, err
		}
		comp.Assigner = a
	}

	for _, name := range cfg.Components.Transforms {
		t, err := registry.Transform[name](cfg.Options.Transforms[name])
		if err != nil {
			return curate.Components{}, curate.Settings{}, fmt.Errorf("transform %q: %w", name, err)
		}
		comp.Transforms = append(comp.Transforms, stage.FromTransformer("transform:"+name, t))
	}

	if Enabled(cfg.Dedup.Enabled, true) {
		comp.Dedup = dedup.New(dedup.Options{
			Partitions:      cfg.Dedup.Partitions,
			KeepFingerprint: Enabled(cfg.Dedup.KeepFingerprint, false),
		}, logger)
	}

	spec, err := filterSpec(cfg)
	if err != nil {
		return curate.Components{}, curate.Settings{}, err
	}
	if comp.Filters, err = (filters.Builder{}).Build(spec); err != nil {
		return curate.Components{}, curate.Settings{}, err
	}

	if c := cfg.Classifier; c.Kind != "" {
		model, err := quality.NewCache(nil).Load(ctx, c.Kind, c.Path, c.Options)
		if err != nil {
			return curate.Components{}, curate.Settings{}, err
		}
		comp.Quality, err = quality.NewStages(model, quality.Options{
			Field:         c.Field,
			LabelField:    c.LabelField,
			PositiveLabel: c.PositiveLabel,
			Threshold:     c.Threshold,
		})
		if err != nil {
			return curate.Components{}, curate.Settings{}, err
		}
	}

	set := curate.Settings{
		Inputs:          cloneStrings(cfg.Inputs),
		Concurrency:     cfg.Concurrency,
		MaxFailureRatio: cfg.MaxFailureRatio,
		SeededFields:    cloneStrings(cfg.SeededFields),
		SkipEmpty:       Enabled(cfg.Output.SkipEmpty, false),
		Manifest:        cfg.Output.Manifest,
		Report:          cfg.Output.Report,
	}
	return comp, set, nil
}

// AssembleTraining 构造 prepare-training 所需组件。输入取 Training.High/Low，Inputs 不参与。
func AssembleTraining(cfg Config) (curate.Components, curate.TrainingSettings, error) {
	tr := cfg.Training
	if len(tr.High) == 0 || len(tr.Low) == 0 {
		return curate.Components{}, curate.TrainingSettings{}, fmt.Errorf("config: training.high and training.low required: %w", contract.ErrConstruction)
	}
	for _, roots := range [][]string{tr.High, tr.Low} {
		if err := validateRoots(roots); err != nil {
			return curate.Components{}, curate.TrainingSettings{}, fmt.Errorf("%v: %w", err, contract.ErrConstruction)
		}
	}
	if cfg.Concurrency < 1 {
		return curate.Components{}, curate.TrainingSettings{}, fmt.Errorf("config: concurrency must be >= 1: %w", contract.ErrConstruction)
	}
	if err := validateComponents(cfg); err != nil {
		return curate.Components{}, curate.TrainingSettings{}, fmt.Errorf("%v: %w", err, contract.ErrConstruction)
	}
	enc := effName(tr.Encoder, Defaults().Training.Encoder)
	if registry.Encoder[enc] == nil {
		return curate.Components{}, curate.TrainingSettings{}, fmt.Errorf("config: training encoder %q not registered: %w", enc, contract.ErrConstruction)
	}
	// 训练编码器与主编码器不同名时使用默认选项
	var encOpts []byte
	if enc == effName(cfg.Components.Encoder, Defaults().Components.Encoder) {
		encOpts = cfg.Options.Encoder
	}
	comp, err := assembleIO(cfg, enc, encOpts)
	if err != nil {
		return curate.Components{}, curate.TrainingSettings{}, err
	}
	set := curate.TrainingSettings{
		High:        cloneStrings(tr.High),
		Low:         cloneStrings(tr.Low),
		Concurrency: cfg.Concurrency,
		Artifact:    effName(tr.Artifact, Defaults().Training.Artifact),
		Options: quality.TrainingOptions{
			Count:     tr.Count,
			Seed:      tr.Seed,
			HighLabel: tr.HighLabel,
			LowLabel:  tr.LowLabel,
		},
	}
	return comp, set, nil
}

// assembleIO 构造 Reader/Decoder/Encoder/Writer。
func assembleIO(cfg Config, encName string, encOpts []byte) (curate.Components, error) {
	d := Defaults().Components
	r, err := registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader)
	if err != nil {
		return curate.Components{}, err
	}
	dec, err := registry.Decoder[effName(cfg.Components.Decoder, d.Decoder)](cfg.Options.Decoder)
	if err != nil {
		return curate.Components{}, err
	}
	enc, err := registry.Encoder[encName](encOpts)
	if err != nil {
		return curate.Components{}, err
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer)
	if err != nil {
		return curate.Components{}, err
	}
	return curate.Components{Reader: r, Decoder: dec, Encoder: enc, Writer: w}, nil
}

// filterSpec 取文件或内联规格；两者皆空时返回空规格。
func filterSpec(cfg Config) (filters.Spec, error) {
	if cfg.FilterSpec != "" {
		return filters.Load(cfg.FilterSpec)
	}
	spec := filters.Spec{Filters: cfg.Filters}
	if err := spec.Validate(); err != nil {
		return filters.Spec{}, err
	}
	return spec, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
