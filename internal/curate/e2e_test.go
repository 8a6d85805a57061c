package curate_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "curator/internal/config"
	"curator/internal/curate"
	"curator/internal/diag"
	"curator/internal/ingest"
	"curator/pkg/contract"
	"curator/plugins/classifier/knn"
)

const (
	goodA = "the river survey measured water quality across twelve stations during the spring season"
	goodB = "volunteers planted native trees along the eroded bank and recorded seedling survival rates"
	spam  = "buy cheap pills now click here click here best price guaranteed"
)

func writeFile(t *testing.T, p, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func jsonLines(texts ...string) string {
	var b strings.Builder
	for _, s := range texts {
		line, _ := json.Marshal(map[string]string{"text": s})
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func readJSONL(t *testing.T, p string) []map[string]any {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func outputFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && strings.HasSuffix(p, ".jsonl") {
			out = append(out, p)
		}
		return err
	}))
	return out
}

// UT-E2E-01: 目录输入 → 去重 → 启发式 → kNN 分类器 → 镜像目录输出 + 清单 + 报告
func TestEndToEnd(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	writeFile(t, filepath.Join(in, "a.jsonl"), jsonLines(goodA, spam, "tiny"))
	writeFile(t, filepath.Join(in, "sub", "b.jsonl"), jsonLines(goodA, goodB))
	writeFile(t, filepath.Join(in, "notes.md"), goodB+"\n")
	writeFile(t, filepath.Join(in, "broken.jsonl"), "{not json\n")

	model := filepath.Join(root, "model.db")
	require.NoError(t, knn.BuildArtifact(context.Background(), model, []knn.Example{
		{Text: goodA, Label: "hq"}, {Text: goodB, Label: "hq"}, {Text: spam, Label: "lq"},
	}, knn.Options{K: 1}))

	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{in}
	cfg.Concurrency = 3
	cfg.MaxFailureRatio = 0.5
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, filepath.ToSlash(out)))
	cfg.Filters = cfg.Filters[:1]
	lo := 3.0
	cfg.Filters[0].Threshold.Min = &lo
	cfg.Classifier = cfgpkg.Classifier{Kind: "knn", Path: model, Options: json.RawMessage(`{"k":1}`), PositiveLabel: "hq", Threshold: 0.5}

	logger := diag.NewLoggerTo(nil, "e2e", "error", nil)
	comp, set, err := cfgpkg.Assemble(context.Background(), cfg, logger)
	require.NoError(t, err, "装配失败")
	rep, err := curate.Run(context.Background(), comp, set, logger)
	require.NoError(t, err, "运行失败")

	// 4 个文件中 broken.jsonl 被跳过：1/4 <= 0.5
	assert.Equal(t, 4, rep.InputPartitions)
	require.Len(t, rep.Skipped, 1)
	assert.Contains(t, rep.Skipped[0].Label, "broken.jsonl")
	assert.Equal(t, 6, rep.InputDocs)
	assert.Equal(t, 2, rep.Removed["dedup"], "goodA 与 goodB 各有一份重复")

	// 输出：保留 goodA 与 goodB 各一份；去重后分区为 part-NNNNN
	var docs []map[string]any
	ids := map[string]bool{}
	for _, p := range outputFiles(t, out) {
		assert.True(t, strings.HasPrefix(filepath.Base(p), "part-"), p)
		for _, d := range readJSONL(t, p) {
			docs = append(docs, d)
			id, _ := d["id"].(string)
			assert.True(t, strings.HasPrefix(id, "doc"), "ID 前缀: %v", id)
			assert.False(t, ids[id], "ID 重复: %s", id)
			ids[id] = true
			assert.Contains(t, d, "quality_score")
			assert.Equal(t, "hq", d["quality_label"])
		}
	}
	require.Len(t, docs, 2)
	assert.Equal(t, 2, rep.OutputDocs)

	// 清单与报告
	b, err := os.ReadFile(filepath.Join(out, ingest.ManifestName))
	require.NoError(t, err)
	var m ingest.Manifest
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, 2, m.Docs)
	assert.Equal(t, 1, m.Skipped)

	b, err = os.ReadFile(filepath.Join(out, curate.ReportName))
	require.NoError(t, err)
	var got curate.Report
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, rep.OutputDocs, got.OutputDocs)
	assert.NotEmpty(t, got.Stages)
}

// UT-E2E-02: 跳过比例超限时不写出任何工件
func TestEndToEndRatioExceeded(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	writeFile(t, filepath.Join(in, "ok.jsonl"), jsonLines(goodA))
	writeFile(t, filepath.Join(in, "bad.jsonl"), "{oops\n")

	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{in}
	cfg.MaxFailureRatio = 0.25
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, filepath.ToSlash(out)))

	logger := diag.NewLoggerTo(nil, "e2e", "error", nil)
	comp, set, err := cfgpkg.Assemble(context.Background(), cfg, logger)
	require.NoError(t, err)
	_, err = curate.Run(context.Background(), comp, set, logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, contract.ErrFailureRatioExceeded)
	entries, _ := os.ReadDir(out)
	assert.Empty(t, entries, "超限时不应有输出")
}

// UT-E2E-03: 无重分区阶段时输出镜像输入目录结构
func TestEndToEndMirrorLayout(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")
	writeFile(t, filepath.Join(in, "a.jsonl"), jsonLines(goodA))
	writeFile(t, filepath.Join(in, "sub", "b.txt"), goodB)

	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{in}
	cfg.Dedup.Enabled = new(bool)
	cfg.Filters = nil
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q}`, filepath.ToSlash(out)))

	logger := diag.NewLoggerTo(nil, "e2e", "error", nil)
	comp, set, err := cfgpkg.Assemble(context.Background(), cfg, logger)
	require.NoError(t, err)
	_, err = curate.Run(context.Background(), comp, set, logger)
	require.NoError(t, err)

	a := readJSONL(t, filepath.Join(out, "a.jsonl"))
	require.Len(t, a, 1)
	assert.Equal(t, "doc0000000000", a[0]["id"])
	b := readJSONL(t, filepath.Join(out, "sub", "b.jsonl"))
	require.Len(t, b, 1)
	assert.Equal(t, goodB, b[0]["text"])
}
