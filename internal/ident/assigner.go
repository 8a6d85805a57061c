// Package ident 实现无协调的确定性 ID 分配：规划期为每个分区切分互不相交的计数区间。
package ident

import (
	"context"
	"fmt"
	"math"

	"curator/pkg/contract"
)

// DefaultWidth 为计数器补零宽度。
const DefaultWidth = 10

// SourceIDField 保存被覆盖的原有 ID（例如输入自带的 id 列）。
const SourceIDField = "source_id"

// Options 为 ID 分配参数。
type Options struct {
	Prefix            string `json:"prefix"`
	StartIndex        int64  `json:"start_index"`
	PartitionCapacity int64  `json:"partition_capacity"`
	Width             int    `json:"width,omitempty"`
}

// Assigner 以阶段形式分配 ID；分区 k 使用 [start+k*cap, start+(k+1)*cap)。
type Assigner struct {
	prefix   string
	start    int64
	capacity int64
	width    int
	limit    int64 // 10^width；计数器不得达到该值
}

var _ contract.Stage = (*Assigner)(nil)

// New 校验参数并创建 Assigner。
func New(opts Options) (*Assigner, error) {
	if opts.PartitionCapacity <= 0 {
		return nil, fmt.Errorf("%w: partition_capacity must be > 0", contract.ErrConstruction)
	}
	if opts.StartIndex < 0 {
		return nil, fmt.Errorf("%w: start_index must be >= 0", contract.ErrConstruction)
	}
	w := opts.Width
	if w == 0 {
		w = DefaultWidth
	}
	if w < 1 || w > 18 {
		return nil, fmt.Errorf("%w: width must be in [1,18]", contract.ErrConstruction)
	}
	return &Assigner{
		prefix:   opts.Prefix,
		start:    opts.StartIndex,
		capacity: opts.PartitionCapacity,
		width:    w,
		limit:    int64(math.Pow10(w)),
	}, nil
}

func (a *Assigner) Name() string { return "assign_ids" }
func (a *Assigner) Kind() string { return "assign" }

// Range 返回分区 index 的半开计数区间 [lo, hi)。
func (a *Assigner) Range(index int) (lo, hi int64, err error) {
	if index < 0 {
		return 0, 0, fmt.Errorf("%w: negative partition index %d", contract.ErrInvariantViolation, index)
	}
	k := int64(index)
	if k > (math.MaxInt64-a.start)/a.capacity-1 {
		return 0, 0, &contract.CapacityExceededError{Partition: index, Capacity: a.capacity}
	}
	lo = a.start + k*a.capacity
	return lo, lo + a.capacity, nil
}

// Format 渲染计数器为 ID。
func (a *Assigner) Format(counter int64) string {
	return fmt.Sprintf("%s%0*d", a.prefix, a.width, counter)
}

// AssignPartition 为单个分区分配 ID；超出容量时返回 CapacityExceededError，该分区不产生输出。
func (a *Assigner) AssignPartition(_ context.Context, p contract.Partition) (contract.Partition, error) {
	n := int64(len(p.Docs))
	if n > a.capacity {
		return contract.Partition{}, &contract.CapacityExceededError{Partition: p.Index, Count: len(p.Docs), Capacity: a.capacity}
	}
	lo, _, err := a.Range(p.Index)
	if err != nil {
		return contract.Partition{}, err
	}
	if n > 0 && lo+n-1 >= a.limit {
		return contract.Partition{}, &contract.CapacityExceededError{Partition: p.Index, Count: len(p.Docs), Capacity: a.capacity}
	}
	out := contract.Partition{Index: p.Index, Label: p.Label, Docs: make([]contract.Document, len(p.Docs))}
	for i, d := range p.Docs {
		id := a.Format(lo + int64(i))
		if d.ID != "" && d.ID != id {
			nd, err := d.WithField(SourceIDField, d.ID)
			if err != nil {
				return contract.Partition{}, err
			}
			d = nd
		}
		d.ID = id
		out.Docs[i] = d
	}
	return out, nil
}

// Apply 并行分配；分区之间无任何协调。
func (a *Assigner) Apply(ctx context.Context, ex contract.Executor, ds contract.Dataset) (contract.Dataset, error) {
	return ex.MapPartitions(ctx, a.Name(), ds, a.AssignPartition)
}
