package contract

import "context"

// Stage: Dataset → Dataset 的纯变换。
// 三类：Transform（可改写 text）、Score（仅增改一个字段）、Filter（按字段谓词保留子序列）。
type Stage interface {
	Name() string
	Apply(ctx context.Context, ex Executor, ds Dataset) (Dataset, error)
}

// FieldProducer: 声明阶段写入的字段（用于构造期校验）。
type FieldProducer interface {
	Produces() []string
}

// FieldConsumer: 声明阶段依赖的字段。
type FieldConsumer interface {
	Requires() []string
}

// Kinded: 可选，返回阶段类别（transform|score|filter|dedup|assign）。
type Kinded interface {
	Kind() string
}

// PartitionFunc: 分区局部任务。任务独占分区，不得访问其他分区。
type PartitionFunc func(ctx context.Context, p Partition) (Partition, error)

// KeyFunc: shuffle 分组键。相同键的记录落入同一输出分区。
type KeyFunc func(d Document) string

// Executor: 分区并行执行器（外部协作者的最小接口）。
// 约束：
//  1. MapPartitions 每个分区恰好一个任务；单分区失败隔离到 Skipped，不影响兄弟分区；
//  2. ShuffleByKey 为全量屏障：所有输入分区完成分桶后才形成输出分区。
type Executor interface {
	MapPartitions(ctx context.Context, stage string, ds Dataset, fn PartitionFunc) (Dataset, error)
	ShuffleByKey(ctx context.Context, ds Dataset, key KeyFunc, n int) (Dataset, error)
}

// ScoreFunc: 启发式打分函数（纯函数）。
type ScoreFunc func(text string) (float64, error)

// Transformer: 单文档变换；keep=false 表示丢弃。
type Transformer interface {
	Transform(ctx context.Context, d Document) (out Document, keep bool, err error)
}
