package diag

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"curator/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown      Code = "unknown"
	CodeConstruction Code = "construction"
	CodeCapacity     Code = "capacity"
	CodePartition    Code = "partition"
	CodeModel        Code = "model"
	CodeRatio        Code = "ratio"
	CodeNetwork      Code = "network"
	CodeInvariant    Code = "invariant"
	CodeCancel       Code = "cancel"
	CodeIO           Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	switch {
	case errors.Is(err, contract.ErrFailureRatioExceeded):
		return CodeRatio
	case errors.Is(err, contract.ErrConstruction):
		return CodeConstruction
	case errors.Is(err, contract.ErrModelLoad):
		return CodeModel
	case errors.Is(err, contract.ErrCapacityExceeded):
		return CodeCapacity
	}
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrInvalidInput) ||
		errors.Is(err, contract.ErrReservedField) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	if errors.Is(err, contract.ErrPartitionProcessing) {
		return CodePartition
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
