package contract

import (
	"context"
	"io"
)

// ArtifactID: 持久化工件标识，与 FileID 复用同一表示。
type ArtifactID = FileID

// Writer: 将工件字节流持久化到目标介质（文件系统/对象存储等）。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 按字节透传，不读取/修改业务内容；
//  3. ctx 取消/超时需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}

// Encoder: 将一个分区的文档序列编码为字节流。
type Encoder interface {
	Encode(ctx context.Context, w io.Writer, docs []Document) error
	// Ext 返回工件扩展名（含点，如 ".jsonl"）。
	Ext() string
}
