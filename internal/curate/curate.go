// Package curate 串联一次完整的语料整理运行：
// 读取 → 分配 ID → 变换 → 去重 → 启发式过滤 → 分类器过滤 → 写出。
package curate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"curator/internal/dedup"
	"curator/internal/diag"
	"curator/internal/executor"
	"curator/internal/ident"
	"curator/internal/ingest"
	"curator/internal/stage"
	"curator/pkg/contract"
)

// Components 聚合运行所需的组件。nil 的可选阶段被跳过。
type Components struct {
	Reader  contract.Reader
	Decoder contract.Decoder
	Encoder contract.Encoder
	Writer  contract.Writer

	Assigner   *ident.Assigner
	Transforms []contract.Stage
	Dedup      *dedup.Engine
	Filters    []contract.Stage
	Quality    []contract.Stage
}

// Settings 运行期配置。
type Settings struct {
	Inputs      []string
	Concurrency int
	// MaxFailureRatio: 跳过分区数 / 摄取分区数 超过该值即失败；取值 [0,1]。
	MaxFailureRatio float64
	// SeededFields: 摄取阶段已带入、可直接被过滤引用的字段。
	SeededFields []string
	SkipEmpty    bool
	// Manifest/Report 为工件名；"-" 表示不写。
	Manifest string
	Report   string
	CorrID   string
}

// Stages 返回运行执行的阶段序列（按执行顺序）。
func (c Components) Stages() []contract.Stage {
	var out []contract.Stage
	if c.Assigner != nil {
		out = append(out, c.Assigner)
	}
	out = append(out, c.Transforms...)
	if c.Dedup != nil {
		out = append(out, c.Dedup)
	}
	out = append(out, c.Filters...)
	out = append(out, c.Quality...)
	return out
}

// Run 执行一次整理运行并返回报告。比例超限时不写任何输出。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Report, error) {
	rep := newReport(set.CorrID, set.MaxFailureRatio)
	if err := sanity(comp, set); err != nil {
		return rep, fmt.Errorf("sanity: %w", err)
	}
	clock := logger.Clock()
	t0 := clock.Now()
	runTimer := logger.StartWithKV("curate", "run", "", "", map[string]string{"inputs": strconv.Itoa(len(set.Inputs))})
	term := diag.GetTerminal()
	term.RunStart(max(set.Concurrency, 1), len(set.Inputs))
	ok := false
	defer func() {
		term.RunFinish(ok, clock.Since(t0))
	}()

	// 构造期校验先于任何数据处理
	stages := comp.Stages()
	wrapped := make([]contract.Stage, len(stages))
	for i, s := range stages {
		wrapped[i] = announced{Stage: s}
	}
	ingested := 0
	pl, err := stage.NewPipeline(set.SeededFields, wrapped...)
	if err != nil {
		return rep, err
	}
	pl = pl.Named("curate").WithObserver(func(_ context.Context, st stage.StageStats) error {
		rep.Stages = append(rep.Stages, StageReport{
			Name: st.Name, Kind: st.Kind, In: st.In, Out: st.Out,
			Removed: st.Removed(), SkippedDocs: st.Skipped, DurationMS: st.Duration.Milliseconds(),
		})
		rep.Removed[st.Name] += st.Removed()
		term.StageFinish(true, st.Out, st.Duration)
		logger.Debug("curate", "stage done", "", "", map[string]string{
			"stage": st.Name, "in": strconv.Itoa(st.In), "out": strconv.Itoa(st.Out), "removed": strconv.Itoa(st.Removed()),
		})
		rep.setSkipped(st.Dataset.Skipped)
		return checkRatio(&rep, ingested, set.MaxFailureRatio)
	})
	logger.Debug("curate", "pipeline: "+stage.Describe(stages), "", "", nil)

	ex := executor.New(set.Concurrency, logger)
	term.StageStart(ingest.StageName, len(set.Inputs))
	ds, err := ingest.ReadPartitions(ctx, comp.Reader, comp.Decoder, set.Inputs, logger)
	if err != nil {
		return rep, fmt.Errorf("stage %s: %w", ingest.StageName, err)
	}
	ingested = ingest.Ingested(ds)
	rep.InputPartitions = ingested
	rep.InputDocs = ds.NumDocs()
	rep.setSkipped(ds.Skipped)
	term.StageFinish(true, rep.InputDocs, clock.Since(t0))
	if err := checkRatio(&rep, ingested, set.MaxFailureRatio); err != nil {
		return rep, fmt.Errorf("stage %s: %w", ingest.StageName, err)
	}

	out, err := pl.Apply(ctx, ex, ds)
	if err != nil {
		logger.Error("curate", string(diag.Classify(err)), err.Error(), nil)
		return rep, err
	}
	rep.setSkipped(out.Skipped)
	rep.OutputPartitions = len(out.Partitions)
	rep.OutputDocs = out.NumDocs()

	wt := logger.Start("curate", "write output")
	term.StageStart("write", len(out.Partitions))
	m, err := ingest.WritePartitions(ctx, out, comp.Encoder, comp.Writer,
		ingest.WriteOptions{Manifest: set.Manifest, SkipEmpty: set.SkipEmpty, Roots: set.Inputs}, logger)
	if err != nil {
		return rep, fmt.Errorf("stage write: %w", err)
	}
	rep.Artifacts = len(m.Artifacts)
	term.StageFinish(true, m.Docs, wt.Elapsed())
	wt.Finish("write output", int64(m.Docs))

	rep.DurationMS = clock.Since(t0).Milliseconds()
	if set.Report != "-" {
		name := set.Report
		if name == "" {
			name = ReportName
		}
		if err := writeReport(ctx, comp.Writer, name, rep); err != nil {
			return rep, fmt.Errorf("write report: %w", err)
		}
	}
	runTimer.FinishWithKV("run finished: "+rep.Summary(), int64(rep.OutputDocs), map[string]string{
		"input_docs":         strconv.Itoa(rep.InputDocs),
		"skipped_partitions": strconv.Itoa(len(rep.Skipped)),
		"artifacts":          strconv.Itoa(rep.Artifacts),
	})
	ok = true
	return rep, nil
}

// checkRatio 在比例超过上限时返回 ErrFailureRatioExceeded。
func checkRatio(rep *Report, ingested int, maxRatio float64) error {
	if ingested == 0 {
		rep.FailureRatio = 0
		return nil
	}
	rep.FailureRatio = float64(len(rep.Skipped)) / float64(ingested)
	if rep.FailureRatio > maxRatio {
		return fmt.Errorf("%d/%d partitions skipped (%.4f > %.4f): %w",
			len(rep.Skipped), ingested, rep.FailureRatio, maxRatio, contract.ErrFailureRatioExceeded)
	}
	return nil
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Decoder == nil || c.Encoder == nil || c.Writer == nil {
		return fmt.Errorf("curate: missing components: %w", contract.ErrConstruction)
	}
	if s.MaxFailureRatio < 0 || s.MaxFailureRatio > 1 {
		return fmt.Errorf("curate: max_failure_ratio %v out of [0,1]: %w", s.MaxFailureRatio, contract.ErrConstruction)
	}
	if len(s.Inputs) == 0 {
		return errors.New("curate: empty inputs")
	}
	return nil
}

// announced 在阶段开始时通知终端；其余行为透传给内部阶段。
type announced struct {
	contract.Stage
}

func (a announced) Kind() string { return stage.KindOf(a.Stage) }

func (a announced) Produces() []string {
	if p, ok := a.Stage.(contract.FieldProducer); ok {
		return p.Produces()
	}
	return nil
}

func (a announced) Requires() []string {
	if c, ok := a.Stage.(contract.FieldConsumer); ok {
		return c.Requires()
	}
	return nil
}

func (a announced) Apply(ctx context.Context, ex contract.Executor, ds contract.Dataset) (contract.Dataset, error) {
	diag.GetTerminal().StageStart(a.Name(), len(ds.Partitions))
	t := time.Now()
	out, err := a.Stage.Apply(ctx, ex, ds)
	if err != nil {
		diag.GetTerminal().StageFinish(false, 0, time.Since(t))
	}
	return out, err
}
