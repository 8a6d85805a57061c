// Package ingest 在 Reader/Decoder 与 Encoder/Writer 之上实现分区读写：
// 每个输入文件对应一个分区，输出工件与分区一一对应。
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"curator/internal/diag"
	"curator/pkg/contract"
)

// StageName 为摄取失败在 Skipped 中记录的阶段名。
const StageName = "ingest"

// ManifestName 为默认清单工件名。
const ManifestName = "manifest.json"

// ReadPartitions 遍历 roots，每个文件解码为一个分区（Index 为遍历序，Label 为 FileID）。
// 解码失败只隔离该分区；Reader 自身错误与取消为致命。
func ReadPartitions(ctx context.Context, r contract.Reader, d contract.Decoder, roots []string, logger *diag.Logger) (contract.Dataset, error) {
	if r == nil || d == nil {
		return contract.Dataset{}, fmt.Errorf("ingest: reader and decoder required: %w", contract.ErrConstruction)
	}
	var ds contract.Dataset
	idx := 0
	rtimer := logger.Start("reader", "iterate")
	err := r.Iterate(ctx, roots, func(fileID contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		i := idx
		idx++
		label := string(fileID)
		t := logger.StartWith("decoder", "decode", label, "")
		docs, err := d.Decode(ctx, fileID, rc)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			code := diag.Classify(err)
			logger.Warn("decoder", string(code), "partition skipped: "+err.Error(), label, fmt.Sprint(i), nil)
			diag.IncOp("decoder", "skip", "error")
			diag.IncError("decoder", string(code))
			ds.Skipped = append(ds.Skipped, contract.PartitionFailure{
				Stage: StageName, Index: i, Label: label,
				Err: &contract.PartitionError{Stage: StageName, Index: i, Label: label, Err: err},
			})
			return nil
		}
		for k := range docs {
			if docs[k].SourceFile == "" {
				docs[k].SourceFile = label
			}
		}
		t.Finish("decode", int64(len(docs)))
		diag.IncOp("decoder", "finish", "success")
		ds.Partitions = append(ds.Partitions, contract.Partition{Index: i, Label: label, Docs: docs})
		return nil
	})
	if err != nil {
		logger.Error("reader", string(diag.Classify(err)), "iterate failed: "+err.Error(), nil)
		return contract.Dataset{}, fmt.Errorf("reader iterate: %w", err)
	}
	rtimer.Finish("iterate", int64(idx))
	diag.IncOp("reader", "finish", "success")
	return ds, nil
}

// Ingested 返回摄取的分区总数（成功 + 摄取期跳过）。
func Ingested(ds contract.Dataset) int {
	n := len(ds.Partitions)
	for _, f := range ds.Skipped {
		if f.Stage == StageName {
			n++
		}
	}
	return n
}

// WriteOptions 控制输出。
type WriteOptions struct {
	// Manifest 为清单工件名；空为 manifest.json，"-" 不写清单。
	Manifest string
	// SkipEmpty 为真时不为空分区写工件。
	SkipEmpty bool
	// Roots 为输入根；分区标签去除所在根前缀后再映射工件名。
	Roots []string
}

// ManifestEntry 描述一个输出工件。
type ManifestEntry struct {
	Artifact string `json:"artifact"`
	Index    int    `json:"index"`
	Label    string `json:"label"`
	Docs     int    `json:"docs"`
}

// Manifest 列出全部输出工件与计数。
type Manifest struct {
	Artifacts []ManifestEntry `json:"artifacts"`
	Docs      int             `json:"docs"`
	Skipped   int             `json:"skipped_partitions"`
}

// WritePartitions 按 Index 顺序为每个分区写出 <label 去扩展名><ext>。
// 每个工件一次 Writer.Write 调用，经 io.Pipe 流式编码。
func WritePartitions(ctx context.Context, ds contract.Dataset, enc contract.Encoder, w contract.Writer, opts WriteOptions, logger *diag.Logger) (Manifest, error) {
	if enc == nil || w == nil {
		return Manifest{}, fmt.Errorf("ingest: encoder and writer required: %w", contract.ErrConstruction)
	}
	parts := append([]contract.Partition(nil), ds.Partitions...)
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].Index < parts[j].Index })

	m := Manifest{Artifacts: []ManifestEntry{}, Skipped: len(ds.Skipped)}
	used := map[contract.ArtifactID]bool{}
	for _, p := range parts {
		if opts.SkipEmpty && len(p.Docs) == 0 {
			continue
		}
		id := contract.ArtifactFor(RelLabel(p.Label, opts.Roots), enc.Ext())
		if used[id] || (opts.Manifest != "-" && string(id) == manifestName(opts)) {
			id = contract.ArtifactID(fmt.Sprintf("%s-%05d%s", strings.TrimSuffix(string(id), enc.Ext()), p.Index, enc.Ext()))
		}
		used[id] = true
		if err := writeOne(ctx, enc, w, id, p, logger); err != nil {
			return Manifest{}, err
		}
		m.Artifacts = append(m.Artifacts, ManifestEntry{Artifact: string(id), Index: p.Index, Label: p.Label, Docs: len(p.Docs)})
		m.Docs += len(p.Docs)
	}
	if opts.Manifest == "-" {
		return m, nil
	}
	var buf bytes.Buffer
	je := json.NewEncoder(&buf)
	je.SetIndent("", "  ")
	je.SetEscapeHTML(false)
	if err := je.Encode(m); err != nil {
		return Manifest{}, err
	}
	if err := w.Write(ctx, contract.ArtifactID(manifestName(opts)), &buf); err != nil {
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}

// RelLabel 返回标签相对于所属输入根的路径；单文件根取其基名。
func RelLabel(label string, roots []string) string {
	l := string(contract.NormalizeFileID(label))
	for _, r := range roots {
		root := string(contract.NormalizeFileID(r))
		if l == root {
			return path.Base(l)
		}
		if root == "." {
			return l
		}
		if rest, ok := strings.CutPrefix(l, strings.TrimSuffix(root, "/")+"/"); ok {
			return rest
		}
	}
	return label
}

func manifestName(opts WriteOptions) string {
	if opts.Manifest == "" {
		return ManifestName
	}
	return opts.Manifest
}

func writeOne(ctx context.Context, enc contract.Encoder, w contract.Writer, id contract.ArtifactID, p contract.Partition, logger *diag.Logger) error {
	wtimer := logger.StartWith("writer", "write", string(id), fmt.Sprint(p.Index))
	pr, pw := io.Pipe()
	wdone := make(chan error, 1)
	go func() {
		err := w.Write(ctx, id, pr)
		// 写者提前返回时解除编码端阻塞
		_ = pr.CloseWithError(err)
		wdone <- err
	}()
	eerr := enc.Encode(ctx, pw, p.Docs)
	_ = pw.CloseWithError(eerr)
	werr := <-wdone
	if eerr != nil {
		logger.ErrorWith("encoder", string(diag.Classify(eerr)), "encode failed: "+eerr.Error(), nil, string(id), fmt.Sprint(p.Index))
		diag.IncOp("encoder", "error", "error")
		return fmt.Errorf("encode %s: %w", id, eerr)
	}
	if werr != nil {
		logger.ErrorWith("writer", string(diag.Classify(werr)), "write failed: "+werr.Error(), nil, string(id), fmt.Sprint(p.Index))
		diag.IncOp("writer", "error", "error")
		return fmt.Errorf("write %s: %w", id, werr)
	}
	wtimer.Finish("write", int64(len(p.Docs)))
	diag.IncOp("writer", "finish", "success")
	return nil
}
