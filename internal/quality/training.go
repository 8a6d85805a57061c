package quality

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"curator/internal/stage"
	"curator/pkg/contract"
	"curator/plugins/encoder/fasttext"
)

// TrainingOptions 控制训练语料准备。
type TrainingOptions struct {
	Count     int    `json:"count"`
	Seed      int64  `json:"seed"`
	HighLabel string `json:"high_label,omitempty"`
	LowLabel  string `json:"low_label,omitempty"`
	// LabelField 缺省为 fastText 编码器读取的字段。
	LabelField string `json:"label_field,omitempty"`
}

func (o TrainingOptions) withDefaults() TrainingOptions {
	if o.HighLabel == "" {
		o.HighLabel = "hq"
	}
	if o.LowLabel == "" {
		o.LowLabel = "lq"
	}
	if o.LabelField == "" {
		o.LabelField = fasttext.LabelField
	}
	return o
}

// Sample 以 seed 确定性地抽取至多 n 个文档。分区按 Index 排序后展开，结果与执行顺序无关。
func Sample(ds contract.Dataset, n int, seed int64) []contract.Document {
	all := flatten(ds)
	if n < 0 || n >= len(all) {
		n = len(all)
	}
	r := rand.New(rand.NewSource(seed))
	perm := r.Perm(len(all))
	out := make([]contract.Document, 0, n)
	for _, i := range perm[:n] {
		out = append(out, all[i])
	}
	return out
}

func flatten(ds contract.Dataset) []contract.Document {
	parts := append([]contract.Partition(nil), ds.Partitions...)
	sortPartitions(parts)
	var out []contract.Document
	for _, p := range parts {
		out = append(out, p.Docs...)
	}
	return out
}

func sortPartitions(ps []contract.Partition) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Index != ps[j].Index {
			return ps[i].Index < ps[j].Index
		}
		return ps[i].Label < ps[j].Label
	})
}

// LabelStage 返回写入固定标签字段的 Transform 阶段。
func LabelStage(field, label string) contract.Stage {
	return stage.Transform("label:"+label, func(_ context.Context, d contract.Document) (contract.Document, bool, error) {
		out, err := d.WithField(field, label)
		return out, err == nil, err
	})
}

// PrepareTraining 从高/低质量数据集各抽取 Count 个文档、打标签并混洗，返回单分区数据集。
func PrepareTraining(ctx context.Context, ex contract.Executor, high, low contract.Dataset, opts TrainingOptions) (contract.Dataset, error) {
	if opts.Count <= 0 {
		return contract.Dataset{}, fmt.Errorf("training count must be > 0, got %d: %w", opts.Count, contract.ErrConstruction)
	}
	opts = opts.withDefaults()
	if opts.HighLabel == opts.LowLabel {
		return contract.Dataset{}, fmt.Errorf("training labels must differ: %w", contract.ErrConstruction)
	}
	var merged []contract.Document
	for i, src := range []struct {
		ds    contract.Dataset
		label string
	}{{high, opts.HighLabel}, {low, opts.LowLabel}} {
		in := contract.Dataset{Partitions: []contract.Partition{{Index: i, Label: src.label, Docs: Sample(src.ds, opts.Count, opts.Seed+int64(i))}}}
		out, err := LabelStage(opts.LabelField, src.label).Apply(ctx, ex, in)
		if err != nil {
			return contract.Dataset{}, err
		}
		if len(out.Skipped) > 0 {
			return contract.Dataset{}, fmt.Errorf("label %s: %w", src.label, out.Skipped[0].Err)
		}
		merged = append(merged, flatten(out)...)
	}
	r := rand.New(rand.NewSource(opts.Seed))
	r.Shuffle(len(merged), func(i, j int) { merged[i], merged[j] = merged[j], merged[i] })
	return contract.Dataset{Partitions: []contract.Partition{{Index: 0, Label: "train", Docs: merged}}}, nil
}
