package linear

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func artifact() Artifact {
	return Artifact{
		Labels:  []string{"hq", "lq"},
		Bias:    []float64{0, 0},
		Weights: map[string][]float64{"research": {3, -3}, "buy now": {-4, 4}, "click": {-2, 2}},
	}
}

func TestFeatures(t *testing.T) {
	assert.Equal(t, []string{"buy", "now", "today", "buy now", "now today"}, Features("Buy now, today!", 2, 0))
	assert.Len(t, Features("a b c d", 2, 3), 3)
	assert.Empty(t, Features("", 2, 0))
}

// UT-LIN-01: 预测标签与置信度
func TestInfer(t *testing.T) {
	m, err := New(artifact(), Options{})
	require.NoError(t, err)
	p, err := m.Infer(context.Background(), "Original research results")
	require.NoError(t, err)
	assert.Equal(t, "hq", p.Label)
	assert.Greater(t, p.Confidence, 0.5)

	p, err = m.Infer(context.Background(), "click buy now")
	require.NoError(t, err)
	assert.Equal(t, "lq", p.Label)

	p, err = m.Infer(context.Background(), "")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.Confidence, 1e-9, "无特征时仅由偏置决定")
	assert.Equal(t, []string{"hq", "lq"}, m.Labels())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "model.json")
	b, err := json.Marshal(artifact())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, b, 0o644))
	m, err := Load(p, Options{MaxFeatures: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, m.a.NGrams, "ngrams 缺省为 2")

	_, err = Load(filepath.Join(dir, "missing.json"), Options{})
	assert.Error(t, err)
	require.NoError(t, os.WriteFile(p, []byte("{"), 0o644))
	_, err = Load(p, Options{})
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	bad := []Artifact{
		{Labels: []string{"only"}, Bias: []float64{0}},
		{Labels: []string{"a", "b"}, Bias: []float64{0}},
		{Labels: []string{"a", "b"}, Bias: []float64{0, 0}, Weights: map[string][]float64{"x": {1}}},
	}
	for i, a := range bad {
		_, err := New(a, Options{})
		assert.Error(t, err, "case %d", i)
	}
}

func TestHashedWeights(t *testing.T) {
	a := Artifact{Labels: []string{"hq", "lq"}, Bias: []float64{0, 0}, Buckets: 1024,
		Weights: map[string][]float64{strconv.Itoa(HashBucket("spam", 1024)): {-5, 5}}}
	m, err := New(a, Options{})
	require.NoError(t, err)
	p, err := m.Infer(context.Background(), "spam")
	require.NoError(t, err)
	assert.Equal(t, "lq", p.Label)
	assert.Less(t, HashBucket("anything", 7), 7)

	a.Buckets = -1
	_, err = New(a, Options{})
	assert.Error(t, err)
}
