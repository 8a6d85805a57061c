package contract

import (
	"context"
	"errors"
	"fmt"
)

// 最小错误分类（用于上层策略判定）。
var (
	// ErrConstruction: 流水线/规格配置错误，处理任何数据前即失败（致命）。
	ErrConstruction = errors.New("construction error")
	// ErrUnknownFilter: 规格引用了未注册的启发式。
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrInvalidThreshold: 阈值格式非法（例如 min > max）。
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrMissingField: Filter 依赖的字段未被上游 Score 写入。
	ErrMissingField = errors.New("missing field")
	// ErrCapacityExceeded: 分区文档数超出预分配的 ID 区间。
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrPartitionProcessing: 单分区处理失败（已隔离）。
	ErrPartitionProcessing = errors.New("partition processing failed")
	// ErrModelLoad: 分类器工件缺失或损坏（致命）。
	ErrModelLoad = errors.New("model load failed")
	// ErrFailureRatioExceeded: 跳过分区比例超过阈值，升级为致命。
	ErrFailureRatioExceeded = errors.New("failure ratio exceeded")
	// ErrReservedField: 字段名与保留字段冲突。
	ErrReservedField = errors.New("reserved field name")
	ErrInvalidInput  = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)

// UnknownFilterError: 构造期错误。
type UnknownFilterError struct {
	Name string
}

func (e *UnknownFilterError) Error() string { return fmt.Sprintf("unknown filter %q", e.Name) }

func (e *UnknownFilterError) Is(target error) bool {
	return target == ErrUnknownFilter || target == ErrConstruction
}

// InvalidThresholdError: 构造期错误。
type InvalidThresholdError struct {
	Filter string
	Reason string
}

func (e *InvalidThresholdError) Error() string {
	return fmt.Sprintf("filter %q: invalid threshold: %s", e.Filter, e.Reason)
}

func (e *InvalidThresholdError) Is(target error) bool {
	return target == ErrInvalidThreshold || target == ErrConstruction
}

// MissingFieldError: 构造期或首次执行时发现字段缺失。
// Exec 标记执行期发现；DocID 可能为空（尚未分配 ID）。
type MissingFieldError struct {
	Stage string
	Field string
	DocID string
	Exec  bool
}

func (e *MissingFieldError) Error() string {
	switch {
	case e.DocID != "":
		return fmt.Sprintf("stage %q: field %q missing on document %q", e.Stage, e.Field, e.DocID)
	case e.Exec:
		return fmt.Sprintf("stage %q: field %q missing on a document without id", e.Stage, e.Field)
	}
	return fmt.Sprintf("stage %q: field %q is not produced by any preceding stage", e.Stage, e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField || target == ErrConstruction
}

// CapacityExceededError: 该分区致命，停止其后续处理。
type CapacityExceededError struct {
	Partition int
	Count     int
	Capacity  int64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("partition %d: %d documents exceed id capacity %d", e.Partition, e.Count, e.Capacity)
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

// PartitionError: 执行器对单分区失败的包装。
type PartitionError struct {
	Stage string
	Index int
	Label string
	Err   error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("stage %q partition %d (%s): %v", e.Stage, e.Index, e.Label, e.Err)
}

func (e *PartitionError) Unwrap() error { return e.Err }

func (e *PartitionError) Is(target error) bool { return target == ErrPartitionProcessing }

// ModelLoadError: 分类器构造期致命错误。
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }

// IsFatal 判断错误是否应中止整个运行而非隔离分区：
// 构造期错误、模型加载错误、比例超限与取消。
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConstruction) ||
		errors.Is(err, ErrModelLoad) ||
		errors.Is(err, ErrFailureRatioExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
