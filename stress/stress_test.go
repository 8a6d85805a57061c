package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "curator/internal/config"
	"curator/internal/curate"
	"curator/internal/diag"
)

// baseConfig 构造可运行的最小配置：jsonl 输入，含去重与两条启发式过滤。
func baseConfig(input, outDir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Inputs = []string{input}
	cfg.Logging.Level = "error"
	cfg.MaxFailureRatio = 0
	cfg.Components.Decoder = "jsonl"
	cfg.Options.Decoder = nil
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"atomic":false}`, filepath.ToSlash(outDir)))
	cfg.Filters = cfg.Filters[:0]
	cfg.Filters = append(cfg.Filters, cfgpkg.DefaultTemplateConfig().Filters[0])
	cfg.Filters[0].Threshold.Min = f64(5)
	return cfg
}

func f64(v float64) *float64 { return &v }

// genCorpus 写出 files 个 jsonl 文件，每个 docs 行；约四分之一为跨文件重复，约八分之一过短。
func genCorpus(t *testing.T, dir string, files, docs int) {
	t.Helper()
	for f := 0; f < files; f++ {
		var b strings.Builder
		for d := 0; d < docs; d++ {
			var text string
			switch {
			case d%8 == 0:
				text = "too short"
			case d%4 == 0:
				text = fmt.Sprintf("shared paragraph number %d repeated across every file in the corpus", d)
			default:
				text = fmt.Sprintf("document %d of file %d carries enough distinct words to pass", d, f)
			}
			line, _ := json.Marshal(map[string]any{"text": text, "lang": "en"})
			b.Write(line)
			b.WriteByte('\n')
		}
		name := filepath.Join(dir, fmt.Sprintf("shard-%03d.jsonl", f))
		if err := os.WriteFile(name, []byte(b.String()), 0o644); err != nil {
			t.Fatalf("write corpus: %v", err)
		}
	}
}

// runCurate 装配并执行一次整理运行。
func runCurate(cfg cfgpkg.Config) (curate.Report, error) {
	logger := diag.NewLoggerTo(nil, "stress", "error", nil)
	comp, set, err := cfgpkg.Assemble(context.Background(), cfg, logger)
	if err != nil {
		return curate.Report{}, err
	}
	return curate.Run(context.Background(), comp, set, logger)
}

// readTree 读取输出目录下全部文件（相对路径 -> 内容），排除运行报告。
func readTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		if rel == curate.ReportName {
			return nil
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	if err != nil {
		t.Fatalf("walk output: %v", err)
	}
	return out
}

// TestStress 在不同并发度下运行整理流程并记录延迟统计；输出须与并发度无关。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	input := t.TempDir()
	const files, docs = 40, 200
	genCorpus(t, input, files, docs)

	var baseline map[string]string
	var baseRep curate.Report
	for _, conc := range []int{1, 4, 16, 64} {
		t.Run(fmt.Sprintf("concurrency_%d", conc), func(t *testing.T) {
			const runs = 3
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				outDir := filepath.Join(t.TempDir(), "out")
				cfg := baseConfig(input, outDir)
				cfg.Concurrency = conc
				start := time.Now()
				rep, err := runCurate(cfg)
				if err != nil {
					t.Fatalf("run %d: %v", i, err)
				}
				latencies = append(latencies, time.Since(start))
				tree := readTree(t, outDir)
				if baseline == nil {
					baseline, baseRep = tree, rep
					continue
				}
				if len(tree) != len(baseline) {
					t.Fatalf("输出文件数不一致: %d vs %d", len(tree), len(baseline))
				}
				for name, body := range baseline {
					if tree[name] != body {
						t.Fatalf("并发%d 输出 %s 与基线不一致", conc, name)
					}
				}
				if rep.OutputDocs != baseRep.OutputDocs || rep.InputDocs != files*docs {
					t.Fatalf("计数不一致: %+v vs %+v", rep, baseRep)
				}
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			t.Logf("并发%d 平均%v 95%%延迟%v 输出文档%d", conc, avg, latencies[idx], baseRep.OutputDocs)
		})
	}
}
