// Package linear 实现基于词 n-gram 的线性 softmax 文本分类模型。
//
// 工件为 JSON：
//
//	{"labels":["hq","lq"],"bias":[0.1,-0.1],"ngrams":2,"weights":{"good":[1.2,-1.2],"buy now":[-2,2]}}
//
// buckets > 0 时特征先哈希（FNV-1a mod buckets），weights 的键为桶号的十进制串。
package linear

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strconv"
	"strings"

	"curator/pkg/contract"
	"curator/plugins/heuristic/lexical"
)

// Artifact 为模型文件结构。
type Artifact struct {
	Labels  []string             `json:"labels"`
	Bias    []float64            `json:"bias"`
	NGrams  int                  `json:"ngrams,omitempty"`
	Buckets int                  `json:"buckets,omitempty"`
	Weights map[string][]float64 `json:"weights"`
}

// Options 为加载选项。
type Options struct {
	// MaxFeatures 单文档最多使用的特征数；0 不限。
	MaxFeatures int `json:"max_features,omitempty"`
}

type Model struct {
	a           Artifact
	maxFeatures int
}

var _ contract.Model = (*Model)(nil)

// Load 读取并校验工件。
func Load(path string, opts Options) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("parse artifact: %w", err)
	}
	return New(a, opts)
}

// New 由内存工件构造模型。
func New(a Artifact, opts Options) (*Model, error) {
	k := len(a.Labels)
	if k < 2 {
		return nil, errors.New("artifact needs at least two labels")
	}
	if len(a.Bias) != k {
		return nil, fmt.Errorf("bias has %d entries, want %d", len(a.Bias), k)
	}
	for f, w := range a.Weights {
		if len(w) != k {
			return nil, fmt.Errorf("feature %q has %d weights, want %d", f, len(w), k)
		}
	}
	if a.Buckets < 0 {
		return nil, fmt.Errorf("buckets must be >= 0, got %d", a.Buckets)
	}
	if a.NGrams <= 0 {
		a.NGrams = 2
	}
	return &Model{a: a, maxFeatures: opts.MaxFeatures}, nil
}

// Features 返回小写词的 1..n-gram。
func Features(text string, n int, limit int) []string {
	ws := lexical.Words(text)
	for i := range ws {
		ws[i] = strings.ToLower(ws[i])
	}
	var out []string
	for size := 1; size <= n; size++ {
		for i := 0; i+size <= len(ws); i++ {
			out = append(out, strings.Join(ws[i:i+size], " "))
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// Infer 计算各标签的 softmax 概率，返回最大者。特征权重取平均。
func (m *Model) Infer(ctx context.Context, text string) (contract.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return contract.Prediction{}, err
	}
	k := len(m.a.Labels)
	logits := make([]float64, k)
	copy(logits, m.a.Bias)
	feats := Features(text, m.a.NGrams, m.maxFeatures)
	if len(feats) > 0 {
		sum := make([]float64, k)
		for _, f := range feats {
			if w, ok := m.a.Weights[m.key(f)]; ok {
				for i := range sum {
					sum[i] += w[i]
				}
			}
		}
		for i := range logits {
			logits[i] += sum[i] / float64(len(feats))
		}
	}
	probs := softmax(logits)
	best := 0
	for i := 1; i < k; i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return contract.Prediction{Label: m.a.Labels[best], Confidence: probs[best]}, nil
}

func (m *Model) key(f string) string {
	if m.a.Buckets == 0 {
		return f
	}
	return strconv.Itoa(HashBucket(f, m.a.Buckets))
}

// HashBucket 返回特征所在的哈希桶。
func HashBucket(f string, buckets int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(f))
	return int(h.Sum32() % uint32(buckets))
}

// Labels 返回模型标签集。
func (m *Model) Labels() []string { return append([]string(nil), m.a.Labels...) }

func softmax(x []float64) []float64 {
	mx := math.Inf(-1)
	for _, v := range x {
		mx = math.Max(mx, v)
	}
	out := make([]float64, len(x))
	var z float64
	for i, v := range x {
		out[i] = math.Exp(v - mx)
		z += out[i]
	}
	for i := range out {
		out[i] /= z
	}
	return out
}
