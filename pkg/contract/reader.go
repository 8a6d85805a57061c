package contract

import (
	"context"
	"io"
)

// Reader: 输入源抽象（文件/目录/STDIN）。
// 约束：
// 1) 流式读取，按文件维度回调；
// 2) FileID 稳定且去平台差异化；
// 3) 不做解码，仅提供字节流；
// 4) 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}

// Decoder: 将单个输入文件解码为有序 Document 序列（对应一个分区）。
// 解码失败只影响该文件对应的分区。
type Decoder interface {
	Decode(ctx context.Context, fileID FileID, r io.Reader) ([]Document, error)
}
