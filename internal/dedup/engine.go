// Package dedup 实现精确去重：分区内打指纹 → 按指纹 shuffle（全量屏障）→ 组内按确定性规则保留一条。
//
// 指纹碰撞（不同文本 sha256 相同）视为重复，属已知近似，不做修正。
package dedup

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"

	"curator/internal/diag"
	"curator/pkg/contract"
)

// 内部注解字段；阶段结束前移除。
const (
	keyField  = "__dedup_key"
	partField = "__dedup_part"
	offField  = "__dedup_off"
)

// FingerprintField 为 KeepFingerprint 时保留的字段名。
const FingerprintField = "fingerprint"

// Options 为去重参数。
type Options struct {
	Partitions      int  `json:"partitions"`       // shuffle 输出分区数；<=0 取输入分区数
	KeepFingerprint bool `json:"keep_fingerprint"` // 在输出中保留 fingerprint 字段
}

// Engine 为去重阶段。
type Engine struct {
	opts   Options
	key    func(text string) string
	logger *diag.Logger

	removed atomic.Int64
}

var _ contract.Stage = (*Engine)(nil)

// New 创建基于精确指纹的去重阶段。
func New(opts Options, logger *diag.Logger) *Engine {
	return NewWithKey(opts, Fingerprint, logger)
}

// NewWithKey 以自定义分组键创建去重阶段（例如近似去重的分桶键）。
func NewWithKey(opts Options, key func(text string) string, logger *diag.Logger) *Engine {
	return &Engine{opts: opts, key: key, logger: logger}
}

func (e *Engine) Name() string { return "dedup" }
func (e *Engine) Kind() string { return "dedup" }

// Produces 声明 KeepFingerprint 时写入的字段。
func (e *Engine) Produces() []string {
	if e.opts.KeepFingerprint {
		return []string{FingerprintField}
	}
	return nil
}

// Removed 返回最近一次 Apply 丢弃的文档数。
func (e *Engine) Removed() int64 { return e.removed.Load() }

func (e *Engine) Apply(ctx context.Context, ex contract.Executor, ds contract.Dataset) (contract.Dataset, error) {
	e.removed.Store(0)
	if ds.NumDocs() == 0 {
		return contract.Dataset{Skipped: ds.Skipped}, nil
	}
	t := e.logger.Start(e.Name(), "dedup")

	// 阶段一：分区内注解指纹与来源位置
	annotated, err := ex.MapPartitions(ctx, "dedup_fingerprint", ds, func(ctx context.Context, p contract.Partition) (contract.Partition, error) {
		out := contract.Partition{Index: p.Index, Label: p.Label, Docs: make([]contract.Document, len(p.Docs))}
		for i, d := range p.Docs {
			nd, err := annotate(d, e.key(d.Text), p.Index, i)
			if err != nil {
				return contract.Partition{}, err
			}
			out.Docs[i] = nd
		}
		return out, nil
	})
	if err != nil {
		return contract.Dataset{}, err
	}

	// 阶段二：全量屏障
	shuffled, err := ex.ShuffleByKey(ctx, annotated, func(d contract.Document) string {
		k, _ := d.Field(keyField)
		s, _ := k.(string)
		return s
	}, e.opts.Partitions)
	if err != nil {
		return contract.Dataset{}, err
	}

	// 阶段三：组内保留最小者
	out, err := ex.MapPartitions(ctx, "dedup_resolve", shuffled, func(ctx context.Context, p contract.Partition) (contract.Partition, error) {
		kept, dropped := e.resolve(p.Docs)
		e.removed.Add(int64(dropped))
		return contract.Partition{Index: p.Index, Label: p.Label, Docs: kept}, nil
	})
	if err != nil {
		return contract.Dataset{}, err
	}
	t.FinishWithKV("dedup done", int64(out.NumDocs()), map[string]string{"removed": strconv.FormatInt(e.removed.Load(), 10)})
	diag.IncOp(e.Name(), "resolve", "ok")
	return out, nil
}

func annotate(d contract.Document, key string, part, off int) (contract.Document, error) {
	var err error
	for _, kv := range []struct {
		k string
		v any
	}{{keyField, key}, {partField, int64(part)}, {offField, int64(off)}} {
		if d, err = d.WithField(kv.k, kv.v); err != nil {
			return d, err
		}
	}
	return d, nil
}

type candidate struct {
	doc  contract.Document
	key  string
	part int64
	off  int64
}

// resolve 在组内按确定性顺序保留每个键的最小者，输出按保留者的全序排序。
func (e *Engine) resolve(docs []contract.Document) (kept []contract.Document, dropped int) {
	best := map[string]candidate{}
	for _, d := range docs {
		c := candidate{doc: d}
		k, _ := d.Field(keyField)
		c.key, _ = k.(string)
		if v, ok := d.Number(partField); ok {
			c.part = int64(v)
		}
		if v, ok := d.Number(offField); ok {
			c.off = int64(v)
		}
		if cur, ok := best[c.key]; !ok || less(c, cur) {
			if ok {
				dropped++
			}
			best[c.key] = c
		} else {
			dropped++
		}
	}
	winners := make([]candidate, 0, len(best))
	for _, c := range best {
		winners = append(winners, c)
	}
	sort.Slice(winners, func(i, j int) bool { return less(winners[i], winners[j]) })
	kept = make([]contract.Document, 0, len(winners))
	for _, c := range winners {
		d := c.doc.WithoutFields(keyField, partField, offField)
		if e.opts.KeepFingerprint {
			if nd, err := d.WithField(FingerprintField, c.key); err == nil {
				d = nd
			}
		}
		kept = append(kept, d)
	}
	return kept, dropped
}

// less 为保留顺序：有 ID 者优先，ID 升序；再按 source_file、原分区号、分区内偏移。
func less(a, b candidate) bool {
	if (a.doc.ID != "") != (b.doc.ID != "") {
		return a.doc.ID != ""
	}
	if a.doc.ID != b.doc.ID {
		return a.doc.ID < b.doc.ID
	}
	if a.doc.SourceFile != b.doc.SourceFile {
		return a.doc.SourceFile < b.doc.SourceFile
	}
	if a.part != b.part {
		return a.part < b.part
	}
	if a.off != b.off {
		return a.off < b.off
	}
	return a.key < b.key
}

// Describe 返回参数的可读描述。
func (e *Engine) Describe() string {
	return fmt.Sprintf("dedup(partitions=%d, keep_fingerprint=%t)", e.opts.Partitions, e.opts.KeepFingerprint)
}
