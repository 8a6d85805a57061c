package diag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/pkg/contract"
)

// UT-DIAG-01: 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	require.NoError(t, w.WriteLine([]byte("first line that is very long")), "写入失败")
	require.NoError(t, w.WriteLine([]byte("second")), "第二次写入失败")
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(files), 2, "应存在轮转文件")
	require.NoError(t, w.Close())
}

// io.Writer 入口按行写入，去除末尾换行
func TestRotatingFileWrite(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 0)
	n, err := w.Write([]byte("{\"a\":1}\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	require.NoError(t, w.Close())
	b, err := os.ReadFile(filepath.Join(dir, "curator-current.log"))
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n", string(b), "不应出现重复换行")
}

func TestRotatingFileRotateFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteLine([]byte("xxxxxxxxxxxxxxxxxx")))
	}
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		if e.Name() == "curator-current.log" {
			hasCurrent = true
		} else if strings.HasPrefix(e.Name(), "curator-") && strings.HasSuffix(e.Name(), ".log") {
			hasRotated = true
		}
	}
	assert.True(t, hasCurrent && hasRotated, "应同时存在当前文件与历史文件")
	w.f = nil
	require.NoError(t, w.rotate(), "f==nil 分支")
}

// 历史文件按数量保留，命名取自注入时钟
func TestRotatingFileMaxBackups(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	w := NewRotatingFileWith(dir, RotateOptions{MaxBytes: 10, MaxBackups: 2, Clock: clock})
	for i := 0; i < 6; i++ {
		require.NoError(t, w.WriteLine([]byte("xxxxxxxxxxxxxxxxxx")))
		clock.Advance(time.Second)
	}
	require.NoError(t, w.Close())
	backups, err := w.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 2, "超出 MaxBackups 的历史文件应被删除")
	assert.Equal(t, "curator-20240501-000004.000000000.log", backups[0])
	assert.Equal(t, "curator-20240501-000005.000000000.log", backups[1])
}

// 同一时刻多次轮转不覆盖历史文件
func TestRotatingFileSameInstant(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	w := NewRotatingFileWith(dir, RotateOptions{MaxBytes: 5, Clock: clock})
	for i := 0; i < 4; i++ {
		require.NoError(t, w.WriteLine([]byte("abcdef")))
	}
	require.NoError(t, w.Close())
	backups, err := w.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 3)
}

// UT-DIAG-02: 指标计数
func TestMetrics(t *testing.T) {
	ResetMetrics()
	IncOp("dedup", "finish", "success")
	IncOp("dedup", "finish", "success")
	IncError("ingest", "io")
	ObserveDuration("dedup", "finish", 7)
	snap := Snapshot()
	assert.Equal(t, int64(2), snap["op_total{comp=dedup,stage=finish,result=success}"])
	assert.Equal(t, int64(1), snap["error_total{comp=ingest,code=io}"])
	assert.Equal(t, int64(7), snap["op_duration_ms{comp=dedup,stage=finish}"])
	keys := SnapshotKeys(snap)
	assert.True(t, sortedStrings(keys), "键应有序")
}

func sortedStrings(ss []string) bool {
	for i := 1; i < len(ss); i++ {
		if ss[i-1] > ss[i] {
			return false
		}
	}
	return true
}

// 错误分类
func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{context.Canceled, CodeCancel},
		{fmt.Errorf("x: %w", context.DeadlineExceeded), CodeCancel},
		{&contract.UnknownFilterError{Name: "x"}, CodeConstruction},
		{&contract.MissingFieldError{Stage: "s", Field: "f"}, CodeConstruction},
		{&contract.ModelLoadError{Path: "m", Err: errors.New("x")}, CodeModel},
		{&contract.CapacityExceededError{}, CodeCapacity},
		{fmt.Errorf("run: %w", contract.ErrFailureRatioExceeded), CodeRatio},
		{contract.ErrPathInvalid, CodeInvariant},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{&net.DNSError{Err: "x"}, CodeNetwork},
		{&contract.PartitionError{Stage: "s", Err: errors.New("bad")}, CodePartition},
		{errors.New("other"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err), "分类错误: %v", c.err)
	}
}

func readEvents(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), "日志行应为 JSON: %s", sc.Text())
		out = append(out, ev)
	}
	return out
}

// Logger 事件形状与假时钟计时
func TestLoggerEvents(t *testing.T) {
	var buf bytes.Buffer
	clock := clockwork.NewFakeClock()
	l := NewLoggerTo(&buf, "corr-1", "debug", clock)

	timer := l.StartWith("dedup", "resolve", "a.jsonl", "3")
	clock.Advance(1500 * time.Millisecond)
	timer.Finish("resolve", 42)
	assert.Equal(t, 1500*time.Millisecond, timer.Elapsed())

	start := clock.Now()
	clock.Advance(20 * time.Millisecond)
	l.ErrorWithKV("ingest", "io", "decode failed", &start, "b.pdf", "1", map[string]string{"reason": "eof"})
	l.Warn("executor", "partition", "partition skipped", "c.txt", "2", nil)
	l.Debug("config", "effective", "", "", map[string]string{"k": "v"})

	evs := readEvents(t, &buf)
	require.Len(t, evs, 5)
	assert.Equal(t, "start", evs[0]["stage"])
	assert.Equal(t, "corr-1", evs[0]["corr_id"])
	assert.Equal(t, "a.jsonl", evs[0]["file_id"])
	assert.Equal(t, "3", evs[0]["partition"])

	assert.Equal(t, "finish", evs[1]["stage"])
	assert.EqualValues(t, 1500, evs[1]["dur_ms"])
	assert.EqualValues(t, 42, evs[1]["count"])
	assert.Equal(t, "resolve", evs[1]["msg"])

	assert.Equal(t, "error", evs[2]["level"])
	assert.Equal(t, "io", evs[2]["code"])
	assert.EqualValues(t, 20, evs[2]["dur_ms"])
	assert.Equal(t, map[string]any{"reason": "eof"}, evs[2]["kv"])

	assert.Equal(t, "warning", evs[3]["level"])
	assert.Equal(t, "skip", evs[3]["stage"])
	assert.Equal(t, "debug", evs[4]["level"])
}

// 级别过滤与 nil 接收者
func TestLoggerLevelFilterAndNil(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "c", "warn", nil)
	l.Start("comp", "msg").Finish("ok", 1)
	l.Debug("comp", "msg", "", "", nil)
	assert.Zero(t, buf.Len(), "warn 级别应过滤 info/debug")
	l.Error("comp", "code", "msg", nil)
	assert.NotZero(t, buf.Len())

	var ln *Logger
	assert.Nil(t, ln.Start("comp", "x"))
	ln.Error("comp", "c", "m", nil)
	ln.Warn("comp", "c", "m", "", "", nil)
	ln.Debug("comp", "m", "", "", nil)
	assert.NotNil(t, ln.Clock())
	assert.NoError(t, ln.Close())
	var tn *Timer
	tn.Finish("x", 0)
	(&Timer{}).Finish("x", 0)
	assert.Zero(t, tn.Elapsed())
}

// Logger 写入默认轮转目录
func TestLoggerWithSink(t *testing.T) {
	cwd, _ := os.Getwd()
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	l := NewLogger("corr", "info")
	l.Start("comp", "msg").Finish("ok", 1)
	require.NoError(t, l.Close())
	_, err := os.Stat(filepath.Join(dir, "logs", "curator-current.log"))
	require.NoError(t, err, "日志文件未生成")
}

// UT-DIAG-03: 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	require.False(t, term.isTTY, "strings.Builder 不是 TTY")
	term.RunStart(4, 2)
	term.StageStart("dedup", 12)
	term.StageProgress(6, 12, 0)
	term.StageFinish(true, 950, 5100*time.Millisecond)
	term.RunFinish(true, 41300*time.Millisecond)

	out := sb.String()
	assert.NotContains(t, out, "\r")
	assert.Contains(t, out, "[run] 并发=4 | 输入=2")
	assert.Contains(t, out, "[stage] dedup | 分区=12")
	assert.Contains(t, out, "[done] dedup | 文档 950 | 用时 5.1s")
	assert.Contains(t, out, "[ok] 全部完成 | 阶段 1 | 总用时 41.3s")
}

// UT-DIAG-04: 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart(2, 1)
	term.StageStart("filter:word_count", 3)

	term.StageProgress(1, 3, 0)
	first := sb.String()
	require.Contains(t, first, "\r[", "首次进度应以回车覆盖")
	term.StageProgress(2, 3, 1)
	assert.Equal(t, first, sb.String(), "100ms 内应被节流")
	time.Sleep(120 * time.Millisecond)
	term.StageProgress(2, 3, 1)
	assert.Greater(t, len(sb.String()), len(first))

	term.StageFinish(false, 0, 2200*time.Millisecond)
	final := sb.String()
	idx := strings.LastIndex(final, "[fail]")
	require.GreaterOrEqual(t, idx, 0)
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	require.GreaterOrEqual(t, cr, 0, "fail 行前应清尾")
	assert.Contains(t, seg[cr+1:], " ")
}

type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

// UT-DIAG-05: 写失败降级为禁用态
func TestTerminalDisableOnWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.isTTY = false
	term.RunStart(1, 1)
	assert.False(t, term.enabled, "写失败后应禁用")
	term.StageStart("a", 0)
	term.StageProgress(0, 0, 0)
	term.StageFinish(true, 0, 0)
	term.RunFinish(true, 0)

	tty := NewTerminal(&flakyWriter{fail: true}, true)
	tty.isTTY = true
	tty.StageProgress(1, 2, 0)
	assert.False(t, tty.enabled, "inline 写失败后应禁用")
}

func TestTerminalHelpers(t *testing.T) {
	assert.Equal(t, "a b c", safe("a\nb\rc"))
	assert.Equal(t, "0ms", formatDur(0))
	assert.Equal(t, "1.5s", formatDur(1500*time.Millisecond))
	SetTerminal(nil)
	assert.Nil(t, GetTerminal())
	SetTerminal(NewTerminal(os.Stderr, false))
	assert.NotNil(t, GetTerminal())
	SetTerminal(nil)

	t.Setenv("CI", "true")
	var sb strings.Builder
	assert.False(t, NewTerminal(&sb, true).isTTY, "CI 环境应视为非 TTY")

	var tn *Terminal
	tn.RunStart(1, 1)
	tn.StageStart("a", 1)
	tn.StageProgress(0, 0, 0)
	tn.StageFinish(true, 0, 0)
	tn.RunFinish(true, 0)
}
