package curate

import (
	"context"
	"fmt"

	"curator/internal/diag"
	"curator/internal/executor"
	"curator/internal/ingest"
	"curator/internal/quality"
	"curator/pkg/contract"
)

// TrainingSettings 控制 prepare-training 子命令。
type TrainingSettings struct {
	High        []string
	Low         []string
	Concurrency int
	Options     quality.TrainingOptions
	// Artifact 为训练语料分区标签，输出名为 <Artifact><ext>。
	Artifact string
}

// PrepareTraining 读取高/低质量语料，抽样打标签后写出单个训练工件。
func PrepareTraining(ctx context.Context, comp Components, set TrainingSettings, logger *diag.Logger) (ingest.Manifest, error) {
	if comp.Reader == nil || comp.Decoder == nil || comp.Encoder == nil || comp.Writer == nil {
		return ingest.Manifest{}, fmt.Errorf("prepare-training: missing components: %w", contract.ErrConstruction)
	}
	if len(set.High) == 0 || len(set.Low) == 0 {
		return ingest.Manifest{}, fmt.Errorf("prepare-training: both high and low inputs required: %w", contract.ErrConstruction)
	}
	t := logger.Start("training", "prepare")
	read := func(roots []string) (contract.Dataset, error) {
		ds, err := ingest.ReadPartitions(ctx, comp.Reader, comp.Decoder, roots, logger)
		if err != nil {
			return ds, err
		}
		for _, f := range ds.Skipped {
			logger.Warn("training", string(diag.Classify(f.Err)), "input skipped", f.Label, "", nil)
		}
		return ds, nil
	}
	high, err := read(set.High)
	if err != nil {
		return ingest.Manifest{}, fmt.Errorf("read high: %w", err)
	}
	low, err := read(set.Low)
	if err != nil {
		return ingest.Manifest{}, fmt.Errorf("read low: %w", err)
	}
	ex := executor.New(set.Concurrency, logger)
	ds, err := quality.PrepareTraining(ctx, ex, high, low, set.Options)
	if err != nil {
		return ingest.Manifest{}, err
	}
	if set.Artifact != "" {
		ds.Partitions[0].Label = set.Artifact
	}
	m, err := ingest.WritePartitions(ctx, ds, comp.Encoder, comp.Writer, ingest.WriteOptions{Manifest: "-"}, logger)
	if err != nil {
		return ingest.Manifest{}, err
	}
	t.Finish("prepare", int64(m.Docs))
	return m, nil
}
