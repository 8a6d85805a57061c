package diag

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Logger 为结构化日志器：每个事件一行 JSON（logrus JSONFormatter），写入轮转文件。
// 事件字段：level, ts, corr_id, comp, stage(start|finish|error), code, dur_ms, count, file_id, partition, msg, kv。
type Logger struct {
	base  *logrus.Logger
	entry *logrus.Entry
	clock clockwork.Clock
	sink  *RotatingFile
}

// NewLogger 通过配置的 level 初始化，并将日志写入默认目录 logs，10m 轮转，保留 10 个历史文件。
func NewLogger(corrID, level string) *Logger {
	clock := clockwork.NewRealClock()
	sink := NewRotatingFileWith("logs", RotateOptions{MaxBytes: 10 * 1024 * 1024, MaxBackups: 10, Clock: clock})
	l := NewLoggerTo(sink, corrID, level, clock)
	l.sink = sink
	return l
}

// NewLoggerTo 写入任意 io.Writer；clock 为 nil 时使用真实时钟。
func NewLoggerTo(w io.Writer, corrID, level string, clock clockwork.Clock) *Logger {
	if w == nil {
		w = os.Stderr
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(parseLevel(level))
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
			logrus.FieldKeyMsg:  "msg",
		},
	})
	return &Logger{base: base, entry: base.WithField("corr_id", corrID), clock: clock}
}

func parseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Close 关闭底层轮转文件（若有）。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// Clock 返回日志器使用的时钟。
func (l *Logger) Clock() clockwork.Clock {
	if l == nil {
		return clockwork.NewRealClock()
	}
	return l.clock
}

func (l *Logger) with(comp, stage string) *logrus.Entry {
	return l.entry.WithFields(logrus.Fields{"comp": comp, "stage": stage})
}

func withLoc(e *logrus.Entry, fileID, partition string, kv map[string]string) *logrus.Entry {
	f := logrus.Fields{}
	if fileID != "" {
		f["file_id"] = fileID
	}
	if partition != "" {
		f["partition"] = partition
	}
	if len(kv) > 0 {
		f["kv"] = kv
	}
	if len(f) == 0 {
		return e
	}
	return e.WithFields(f)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, "", "", nil)
}

// StartWith 记录带 file_id/partition 的 start。
func (l *Logger) StartWith(comp, msg, fileID, partition string) *Timer {
	return l.StartWithKV(comp, msg, fileID, partition, nil)
}

// StartWithKV 记录带 file_id/partition 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID, partition string, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	withLoc(l.with(comp, "start"), fileID, partition, kv).Info(msg)
	return &Timer{l: l, comp: comp, fileID: fileID, partition: partition, t0: l.clock.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", "", nil)
}

// ErrorWith 支持 file_id/partition。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID, partition string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, partition, nil)
}

// ErrorWithKV 支持附带键值对（例如失败原因）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID, partition string, kv map[string]string) {
	if l == nil {
		return
	}
	e := l.with(comp, "error").WithField("code", code)
	if durSince != nil {
		e = e.WithField("dur_ms", l.clock.Since(*durSince).Milliseconds())
	}
	withLoc(e, fileID, partition, kv).Error(msg)
}

// Warn 记录可恢复事件（例如隔离分区）。
func (l *Logger) Warn(comp, code, msg, fileID, partition string, kv map[string]string) {
	if l == nil {
		return
	}
	withLoc(l.with(comp, "skip").WithField("code", code), fileID, partition, kv).Warn(msg)
}

// Debug 输出调试级别事件（仅在 level=debug 时生效）。
func (l *Logger) Debug(comp, msg, fileID, partition string, kv map[string]string) {
	if l == nil {
		return
	}
	withLoc(l.with(comp, "start"), fileID, partition, kv).Debug(msg)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l         *Logger
	comp      string
	fileID    string
	partition string
	t0        time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	t.FinishWithKV(msg, count, nil)
}

// FinishWithKV 记录 finish 并附带键值。
func (t *Timer) FinishWithKV(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	dur := t.l.clock.Since(t.t0).Milliseconds()
	e := t.l.with(t.comp, "finish").WithFields(logrus.Fields{"dur_ms": dur, "count": count})
	withLoc(e, t.fileID, t.partition, kv).Info(msg)
	ObserveDuration(t.comp, "finish", dur)
}

// Elapsed 返回自 start 起的耗时。
func (t *Timer) Elapsed() time.Duration {
	if t == nil || t.l == nil {
		return 0
	}
	return t.l.clock.Since(t.t0)
}
