package knn

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func examples() []Example {
	return []Example{
		{Text: "peer reviewed research on protein folding", Label: "hq"},
		{Text: "a careful study of river ecology and research methods", Label: "hq"},
		{Text: "buy now cheap pills click here", Label: "lq"},
		{Text: "click here to win free money now", Label: "lq"},
	}
}

func TestEmbedding(t *testing.T) {
	ef := Embedding(16)
	v, err := ef(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, v, 16)
	assert.InDelta(t, 1, v[15], 1e-6, "空文本只剩常量维")

	a, _ := ef(context.Background(), "Hello world")
	b, _ := ef(context.Background(), "hello WORLD")
	assert.Equal(t, a, b, "大小写不影响嵌入")
}

// UT-KNN-01: 构建工件、加载并投票
func TestBuildLoadInfer(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "knn.gob")
	require.NoError(t, BuildArtifact(ctx, p, examples(), Options{K: 3}))

	m, err := Load(ctx, p, Options{K: 3})
	require.NoError(t, err)
	pr, err := m.Infer(ctx, "click here buy now")
	require.NoError(t, err)
	assert.Equal(t, "lq", pr.Label)
	assert.Greater(t, pr.Confidence, 0.5)
	assert.LessOrEqual(t, pr.Confidence, 1.0)

	pr, err = m.Infer(ctx, "research study")
	require.NoError(t, err)
	assert.Equal(t, "hq", pr.Label)
}

func TestKClampedToCount(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "knn.gob")
	require.NoError(t, BuildArtifact(ctx, p, examples()[:1], Options{}))
	m, err := Load(ctx, p, Options{K: 50})
	require.NoError(t, err)
	pr, err := m.Infer(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, "hq", pr.Label)
	assert.InDelta(t, 1, pr.Confidence, 1e-9)
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	_, err := Load(ctx, filepath.Join(dir, "missing"), Options{})
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.gob")
	require.NoError(t, os.WriteFile(bad, []byte("not a db"), 0o644))
	_, err = Load(ctx, bad, Options{})
	assert.Error(t, err)

	p := filepath.Join(dir, "knn.gob")
	require.NoError(t, BuildArtifact(ctx, p, examples(), Options{Dims: 32}))
	_, err = Load(ctx, p, Options{Dims: 64})
	assert.Error(t, err, "维度不一致应在加载时失败")

	_, err = Load(ctx, p, Options{Dims: 1})
	assert.Error(t, err)
}

func TestBuildValidation(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "knn.gob")
	assert.Error(t, BuildArtifact(ctx, p, nil, Options{}))
	assert.Error(t, BuildArtifact(ctx, p, []Example{{Text: "x"}}, Options{}))
}
