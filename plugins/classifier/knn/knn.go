// Package knn 实现基于 chromem-go 向量集合的 k 近邻质量分类器。
//
// 工件为 chromem DB 导出文件；每个向量的 metadata["label"] 为其标签。
// 嵌入为词的哈希词袋，构建与推理必须使用相同的维度。
package knn

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"

	"curator/pkg/contract"
	"curator/plugins/heuristic/lexical"
)

const (
	DefaultCollection = "quality"
	DefaultDims       = 256
	DefaultK          = 5
	LabelKey          = "label"
)

type Options struct {
	Collection string `json:"collection,omitempty"`
	Dims       int    `json:"dims,omitempty"`
	K          int    `json:"k,omitempty"`
}

func (o *Options) withDefaults() error {
	if o.Collection == "" {
		o.Collection = DefaultCollection
	}
	if o.Dims == 0 {
		o.Dims = DefaultDims
	}
	if o.K == 0 {
		o.K = DefaultK
	}
	if o.Dims < 2 || o.K < 1 {
		return fmt.Errorf("invalid knn options: dims=%d k=%d", o.Dims, o.K)
	}
	return nil
}

// Example 为一条带标签的构建样本。
type Example struct {
	Text  string
	Label string
}

type Model struct {
	coll  *chromem.Collection
	embed chromem.EmbeddingFunc
	k     int
}

var _ contract.Model = (*Model)(nil)

// Embedding 返回维度为 dims 的哈希词袋嵌入函数。最后一维恒为 1，保证向量非零。
func Embedding(dims int) chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		v := make([]float32, dims)
		v[dims-1] = 1
		for _, w := range lexical.Words(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.ToLower(w)))
			s := h.Sum32()
			i := int(s % uint32(dims-1))
			if s&(1<<31) != 0 {
				v[i]--
			} else {
				v[i]++
			}
		}
		var n float64
		for _, x := range v {
			n += float64(x) * float64(x)
		}
		n = math.Sqrt(n)
		for i := range v {
			v[i] = float32(float64(v[i]) / n)
		}
		return v, nil
	}
}

// BuildArtifact 嵌入样本并导出为 chromem 文件。
func BuildArtifact(ctx context.Context, path string, examples []Example, opts Options) error {
	if err := opts.withDefaults(); err != nil {
		return err
	}
	if len(examples) == 0 {
		return errors.New("knn artifact needs at least one example")
	}
	db := chromem.NewDB()
	coll, err := db.CreateCollection(opts.Collection, map[string]string{"dims": strconv.Itoa(opts.Dims)}, Embedding(opts.Dims))
	if err != nil {
		return err
	}
	docs := make([]chromem.Document, 0, len(examples))
	for i, ex := range examples {
		if ex.Label == "" {
			return fmt.Errorf("example %d: empty label", i)
		}
		docs = append(docs, chromem.Document{
			ID:       strconv.Itoa(i),
			Content:  ex.Text,
			Metadata: map[string]string{LabelKey: ex.Label},
		})
	}
	if err := coll.AddDocuments(ctx, docs, 4); err != nil {
		return fmt.Errorf("embed examples: %w", err)
	}
	return db.ExportToFile(path, false, "", opts.Collection)
}

// Load 导入工件并做一次探测查询以校验嵌入维度。
func Load(ctx context.Context, path string, opts Options) (*Model, error) {
	if err := opts.withDefaults(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db := chromem.NewDB()
	if err := db.ImportFromFile(path, "", opts.Collection); err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	coll := db.GetCollection(opts.Collection, Embedding(opts.Dims))
	if coll == nil {
		return nil, fmt.Errorf("collection %q not found in %s", opts.Collection, path)
	}
	if coll.Count() == 0 {
		return nil, fmt.Errorf("collection %q is empty", opts.Collection)
	}
	if _, err := coll.Query(ctx, "probe", 1, nil, nil); err != nil {
		return nil, fmt.Errorf("probe query: %w", err)
	}
	return &Model{coll: coll, embed: Embedding(opts.Dims), k: opts.K}, nil
}

// Infer 取 k 个最近邻，按相似度加权投票。相似度非正的邻居记极小权重。
func (m *Model) Infer(ctx context.Context, text string) (contract.Prediction, error) {
	n := m.k
	if c := m.coll.Count(); n > c {
		n = c
	}
	// 空文本也有嵌入（常量维），直接按向量查询
	q, err := m.embed(ctx, text)
	if err != nil {
		return contract.Prediction{}, err
	}
	res, err := m.coll.QueryEmbedding(ctx, q, n, nil, nil)
	if err != nil {
		return contract.Prediction{}, err
	}
	votes := map[string]float64{}
	var total float64
	for _, r := range res {
		w := float64(r.Similarity)
		if w <= 0 {
			w = 1e-6
		}
		votes[r.Metadata[LabelKey]] += w
		total += w
	}
	if total == 0 {
		return contract.Prediction{}, errors.New("no neighbours")
	}
	labels := make([]string, 0, len(votes))
	for l := range votes {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	best := labels[0]
	for _, l := range labels[1:] {
		if votes[l] > votes[best] {
			best = l
		}
	}
	return contract.Prediction{Label: best, Confidence: votes[best] / total}, nil
}
