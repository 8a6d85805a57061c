package executor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"strconv"
	"sync"

	"curator/internal/diag"
	"curator/pkg/contract"
)

// - 单点并发：仅此层管理并发与背压；阶段函数均为同步、无内部并发。
// - 分区隔离：单分区失败记入 Dataset.Skipped，不影响兄弟分区。
// - 首错取消：致命错误（构造期、模型、取消）记录首错并 cancel 整体；排空后返回该错误。

// Local 为进程内执行器：有界 worker 池按分区并行。
type Local struct {
	concurrency int
	logger      *diag.Logger
}

var _ contract.Executor = (*Local)(nil)

// New 创建执行器；concurrency<1 视为 1。
func New(concurrency int, logger *diag.Logger) *Local {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Local{concurrency: concurrency, logger: logger}
}

// Concurrency 返回 worker 数。
func (l *Local) Concurrency() int { return l.concurrency }

type job struct {
	pos int
	p   contract.Partition
}

type result struct {
	pos int
	p   contract.Partition
	err error
}

// MapPartitions 对每个分区恰好执行一次 fn，输出保持输入分区顺序。
func (l *Local) MapPartitions(ctx context.Context, stage string, ds contract.Dataset, fn contract.PartitionFunc) (contract.Dataset, error) {
	if fn == nil {
		return contract.Dataset{}, fmt.Errorf("%w: nil partition func", contract.ErrConstruction)
	}
	out := contract.Dataset{Skipped: append([]contract.PartitionFailure(nil), ds.Skipped...)}
	n := len(ds.Partitions)
	if n == 0 {
		return out, ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 有界通道：默认 2×并发度，形成自然背压
	inCh := make(chan job, l.concurrency*2)
	outCh := make(chan result, l.concurrency*2)

	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for j := range inCh {
			p, err := runTask(ctx, fn, j.p)
			outCh <- result{pos: j.pos, p: p, err: err}
		}
	}
	workers := l.concurrency
	if workers > n {
		workers = n
	}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}

	go func() {
		defer close(inCh)
		for i, p := range ds.Partitions {
			select {
			case <-ctx.Done():
				return
			case inCh <- job{pos: i, p: p}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outCh)
	}()

	done := make([]*contract.Partition, n)
	failed := make([]*contract.PartitionFailure, n)
	var firstErr error
	finished, skipped := 0, 0
	for r := range outCh {
		finished++
		src := ds.Partitions[r.pos]
		switch {
		case r.err == nil:
			p := r.p
			done[r.pos] = &p
		case contract.IsFatal(r.err):
			if firstErr == nil {
				firstErr = fmt.Errorf("stage %s partition %d: %w", stage, src.Index, r.err)
				cancel()
			}
		default:
			skipped++
			perr := &contract.PartitionError{Stage: stage, Index: src.Index, Label: src.Label, Err: r.err}
			failed[r.pos] = &contract.PartitionFailure{Stage: stage, Index: src.Index, Label: src.Label, Docs: len(src.Docs), Err: perr}
			code := diag.Classify(r.err)
			l.logger.Warn(stage, string(code), "partition skipped", src.Label, strconv.Itoa(src.Index), map[string]string{"reason": r.err.Error()})
			diag.IncOp(stage, "skip", "error")
			diag.IncError(stage, string(code))
		}
		if t := diag.GetTerminal(); t != nil {
			t.StageProgress(finished, n, skipped)
		}
	}
	if firstErr != nil {
		return contract.Dataset{}, firstErr
	}
	if err := ctx.Err(); err != nil && finished < n {
		return contract.Dataset{}, err
	}
	for i := 0; i < n; i++ {
		if done[i] != nil {
			out.Partitions = append(out.Partitions, *done[i])
		} else if failed[i] != nil {
			out.Skipped = append(out.Skipped, *failed[i])
		}
	}
	return out, nil
}

// runTask 执行单分区任务并将 panic 转换为分区错误。
func runTask(ctx context.Context, fn contract.PartitionFunc, p contract.Partition) (out contract.Partition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v\n%s", contract.ErrInvariantViolation, r, debug.Stack())
		}
	}()
	if err := ctx.Err(); err != nil {
		return contract.Partition{}, err
	}
	return fn(ctx, p)
}

// ShuffleByKey 按 key 重新分组到 n 个输出分区（n<=0 时取输入分区数）。
// 全量屏障：先并行完成所有输入分区的分桶，再按输入分区顺序合并，结果确定。
// 空桶不输出；输出分区 Index 为桶号，Label 为 part-<桶号>。
func (l *Local) ShuffleByKey(ctx context.Context, ds contract.Dataset, key contract.KeyFunc, n int) (contract.Dataset, error) {
	if key == nil {
		return contract.Dataset{}, fmt.Errorf("%w: nil key func", contract.ErrConstruction)
	}
	if n <= 0 {
		n = len(ds.Partitions)
	}
	if n <= 0 {
		n = 1
	}
	out := contract.Dataset{Skipped: append([]contract.PartitionFailure(nil), ds.Skipped...)}
	if ds.NumDocs() == 0 {
		return out, ctx.Err()
	}

	// 阶段一：分区局部分桶
	buckets := make([][][]contract.Document, len(ds.Partitions))
	position := make(map[partKey]int, len(ds.Partitions))
	for i, p := range ds.Partitions {
		position[partKey{p.Index, p.Label}] = i
	}
	var mu sync.Mutex
	bucketed, err := l.MapPartitions(ctx, "shuffle", ds, func(ctx context.Context, p contract.Partition) (contract.Partition, error) {
		local := make([][]contract.Document, n)
		for _, d := range p.Docs {
			b := Bucket(key(d), n)
			local[b] = append(local[b], d)
		}
		pos, ok := position[partKey{p.Index, p.Label}]
		if !ok {
			return contract.Partition{}, errors.New("shuffle: partition not found")
		}
		mu.Lock()
		buckets[pos] = local
		mu.Unlock()
		return contract.Partition{Index: p.Index, Label: p.Label}, nil
	})
	if err != nil {
		return contract.Dataset{}, err
	}
	out.Skipped = bucketed.Skipped

	// 屏障之后：按输入分区顺序合并
	merged := make([][]contract.Document, n)
	for _, local := range buckets {
		for b := range local {
			merged[b] = append(merged[b], local[b]...)
		}
	}
	for b, docs := range merged {
		if len(docs) == 0 {
			continue
		}
		out.Partitions = append(out.Partitions, contract.Partition{Index: b, Label: PartLabel(b), Docs: docs})
	}
	return out, nil
}

type partKey struct {
	index int
	label string
}

// Bucket 返回 key 的目标桶号（FNV-1a 取模）。
func Bucket(key string, n int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(n))
}

// PartLabel 返回重分区后的分区标签。
func PartLabel(i int) string { return fmt.Sprintf("part-%05d", i) }
