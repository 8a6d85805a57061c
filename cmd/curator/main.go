package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	cfgpkg "curator/internal/config"
	"curator/internal/curate"
	"curator/internal/diag"
)

var (
	pipelineRun = curate.Run
	trainingRun = curate.PrepareTraining
)

// 子命令：run（缺省）与 prepare-training。
// run 的位置参数为 roots（文件/目录 或 "-" 表示 STDIN，不能与其他根混用）。
func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = godotenv.Load(".env")
	logLevel := "info"
	// 先占位默认，稍后在解析/合并配置后重建 logger 以使用最终 level
	logger := diag.NewLogger(corrID, logLevel)
	defer func() { _ = logger.Close() }()

	training := takeSubcommand("prepare-training")
	var (
		flagConfig      string
		flagConcurrency int
		flagRatio       float64
		flagFilters     string
		flagInitDir     string
		flagStatus      bool
		flagHigh        string
		flagLow         string
		flagCount       int
		flagSeed        int64
	)
	flag.StringVar(&flagConfig, "config", "", "配置文件路径（JSON）；缺省读取 ./config.json（若存在）")
	flag.IntVar(&flagConcurrency, "concurrency", 0, "并发度（覆盖配置）")
	// 允许显式设置为 0；默认 -1 表示“未覆盖”。
	flag.Float64Var(&flagRatio, "max-failure-ratio", -1, "允许跳过的分区比例上限 [0,1]（覆盖配置）")
	flag.StringVar(&flagFilters, "filters", "", "过滤规格文件（YAML/JSON；覆盖配置）")
	flag.StringVar(&flagInitDir, "init-config", "", "在指定目录生成 config.json、filters.yaml 与 .env 模板（已存在的 config.json 视为错误）；不带值时默认当前目录")
	flag.BoolVar(&flagStatus, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	flag.StringVar(&flagHigh, "high", "", "prepare-training: 高质量语料根（逗号分隔）")
	flag.StringVar(&flagLow, "low", "", "prepare-training: 低质量语料根（逗号分隔）")
	flag.IntVar(&flagCount, "count", 0, "prepare-training: 每类抽样数量")
	flag.Int64Var(&flagSeed, "seed", -1, "prepare-training: 抽样种子")
	normalizeInitArg()
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		return 3
	}
	roots := flag.Args()

	if dir := strings.TrimSpace(flagInitDir); dir != "" {
		if err := initConfig(dir); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "first error", &start)
			return 3
		}
		return 0
	}

	// JSON 配置（文件或 ENV: CURATOR_CONFIG_JSON）
	var cfgJSON []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		cfgJSON = []byte(s)
	}
	if flagConfig == "" {
		flagConfig = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	// 默认读取工作目录下 config.json（若存在）
	if flagConfig == "" {
		if _, err := os.Stat("config.json"); err == nil {
			flagConfig = "config.json"
		}
	}

	cfg := cfgpkg.Defaults()
	if flagConfig != "" || len(cfgJSON) > 0 {
		base, err := cfgpkg.LoadJSON(flagConfig, cfgJSON)
		if err != nil {
			fprintf(os.Stderr, "配置解析失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "first error", &start)
			return 3
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fprintf(os.Stderr, "环境变量解析失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return 3
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖
	overCLI := cfgpkg.Overlay()
	if flagConcurrency > 0 {
		overCLI.Concurrency = flagConcurrency
	}
	overCLI.MaxFailureRatio = flagRatio
	overCLI.FilterSpec = strings.TrimSpace(flagFilters)
	if len(roots) > 0 {
		overCLI.Inputs = roots
	}
	overCLI.Training.High = splitList(flagHigh)
	overCLI.Training.Low = splitList(flagLow)
	overCLI.Training.Count = flagCount
	overCLI.Training.Seed = flagSeed
	cfg = cfgpkg.Merge(cfg, overCLI)

	if strings.TrimSpace(cfg.Logging.Level) != "" {
		_ = logger.Close()
		logLevel = strings.TrimSpace(cfg.Logging.Level)
		logger = diag.NewLogger(corrID, logLevel)
	}

	if err := preflightCheckOutputDir(cfg); err != nil {
		fprintf(os.Stderr, "输出目录不可写或无法创建: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return 3
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if training {
		return runTraining(ctx, cfg, logger, start)
	}

	// 构造期错误（未知过滤、非法阈值、模型加载）均在读取任何输入前暴露
	comp, set, err := cfgpkg.Assemble(ctx, cfg, logger)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		_ = dumpConfig(cfg)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return 3
	}
	set.CorrID = corrID

	// 终端信息提示（非日志）：运行/阶段进度由 curate.Run 上报
	diag.SetTerminal(diag.NewTerminal(os.Stderr, flagStatus))
	defer diag.SetTerminal(nil)

	logger.Debug("config", "effective", "", "", map[string]string{
		"inputs_count":      strconv.Itoa(len(cfg.Inputs)),
		"concurrency":       strconv.Itoa(cfg.Concurrency),
		"max_failure_ratio": strconv.FormatFloat(cfg.MaxFailureRatio, 'g', -1, 64),
		"reader":            cfg.Components.Reader,
		"decoder":           cfg.Components.Decoder,
		"encoder":           cfg.Components.Encoder,
		"writer":            cfg.Components.Writer,
		"transforms":        strings.Join(cfg.Components.Transforms, ","),
		"filters":           strconv.Itoa(len(comp.Filters) / 2),
		"classifier":        cfg.Classifier.Kind,
	})

	rep, err := pipelineRun(ctx, comp, set, logger)
	if err != nil {
		return runFailed(err, logger, start)
	}
	diag.IncOp("curate", "finish", "success")
	diag.ObserveDuration("curate", "finish", time.Since(start).Milliseconds())
	if flagStatus {
		fprintf(os.Stderr, "%s\n", rep.Summary())
	}
	return 0
}

func runTraining(ctx context.Context, cfg cfgpkg.Config, logger *diag.Logger, start time.Time) int {
	comp, set, err := cfgpkg.AssembleTraining(cfg)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return 3
	}
	m, err := trainingRun(ctx, comp, set, logger)
	if err != nil {
		return runFailed(err, logger, start)
	}
	diag.IncOp("training", "finish", "success")
	for _, a := range m.Artifacts {
		fprintf(os.Stderr, "%s: %d docs\n", a.Artifact, a.Docs)
	}
	return 0
}

// runFailed 分类到最接近的错误码并返回运行期退出码。
func runFailed(err error, logger *diag.Logger, start time.Time) int {
	code := string(diag.Classify(err))
	logger.Error("curate", code, "first error", &start)
	diag.IncOp("curate", "error", "error")
	if code != "" && code != string(diag.CodeUnknown) {
		diag.IncError("curate", code)
	}
	if !errors.Is(err, context.Canceled) {
		fprintf(os.Stderr, "运行失败: %v\n", err)
	}
	return 1
}

// takeSubcommand 若 os.Args[1] 为 name 则移除并返回 true。
func takeSubcommand(name string) bool {
	if len(os.Args) > 1 && os.Args[1] == name {
		os.Args = append(os.Args[:1:1], os.Args[2:]...)
		return true
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

// initConfig 生成模板：config.json 已存在视为错误；filters.yaml 与 .env 已存在则跳过。
func initConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
		return err
	}
	if err := writeIfAbsent(filepath.Join(dir, "filters.yaml"), cfgpkg.FilterTemplate); err != nil {
		fprintf(os.Stderr, "提示：filters.yaml 生成失败（已跳过）：%v\n", err)
	}
	if err := writeIfAbsent(filepath.Join(dir, ".env"), cfgpkg.EnvTemplate()); err != nil {
		fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// writeIfAbsent 仅创建文件；不覆盖，不合并。
func writeIfAbsent(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

// normalizeInitArg: 允许 --init-config 在未提供路径值时采用默认值当前目录 "."。
//
//	--init-config                => 等价于 --init-config .
//	--init-config=out
//	--init-config out
func normalizeInitArg() {
	args := os.Args
	if len(args) <= 1 {
		return
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	for i := 1; i < len(args); i++ {
		a := args[i]
		out = append(out, a)
		if a == "--init-config" || a == "-init-config" {
			if i == len(args)-1 || strings.HasPrefix(args[i+1], "-") {
				out = append(out, ".")
			}
		}
	}
	os.Args = out
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// 目录存在时尝试创建并删除临时文件；不存在时检查父目录。其他 writer 跳过。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	writerName := strings.TrimSpace(cfg.Components.Writer)
	if writerName == "" {
		writerName = cfgpkg.Defaults().Components.Writer
	}
	if writerName != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 未指定时无法可靠检查，让装配阶段按实现自行报错
		return nil
	}
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(dir)
	if parent == "" || parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
