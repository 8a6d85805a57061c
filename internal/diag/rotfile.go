package diag

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

const (
	currentLog = "curator-current.log"
	rotatedFmt = "curator-%s.log"
)

// RotateOptions 控制日志轮转。MaxBackups<=0 表示保留全部历史文件。
type RotateOptions struct {
	MaxBytes   int64
	MaxBackups int
	Clock      clockwork.Clock
}

// RotatingFile 按行写入 dir/curator-current.log；size+len(line) 超过 MaxBytes 时
// 重命名为 curator-<UTC 时间戳>.log 并重新创建当前文件。
type RotatingFile struct {
	dir  string
	opts RotateOptions

	mu      sync.Mutex
	f       *os.File
	curSize int64
}

func NewRotatingFile(dir string, maxBytes int64) *RotatingFile {
	return NewRotatingFileWith(dir, RotateOptions{MaxBytes: maxBytes})
}

func NewRotatingFileWith(dir string, opts RotateOptions) *RotatingFile {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 * 1024 * 1024
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &RotatingFile{dir: dir, opts: opts}
}

// Write 实现 io.Writer（logrus 输出端）；每次调用视为一行。
func (w *RotatingFile) Write(p []byte) (int, error) {
	if err := w.WriteLine(bytes.TrimRight(p, "\n")); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *RotatingFile) WriteLine(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return err
	}
	if w.curSize > 0 && w.curSize+int64(len(b)+1) > w.opts.MaxBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	n, err := w.f.Write(append(b[:len(b):len(b)], '\n'))
	w.curSize += int64(n)
	return err
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, currentLog), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f, w.curSize = f, 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.ensureOpen()
	}
	_ = w.f.Close()
	w.f = nil
	if err := os.Rename(filepath.Join(w.dir, currentLog), w.rotatedName()); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	if err := w.prune(); err != nil {
		return err
	}
	return w.ensureOpen()
}

// rotatedName 以纳秒时间戳命名；同名已存在时追加序号。
func (w *RotatingFile) rotatedName() string {
	ts := w.opts.Clock.Now().UTC().Format("20060102-150405.000000000")
	name := filepath.Join(w.dir, fmt.Sprintf(rotatedFmt, ts))
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = filepath.Join(w.dir, fmt.Sprintf(rotatedFmt, fmt.Sprintf("%s-%d", ts, i)))
	}
}

// prune 删除超出 MaxBackups 的最旧历史文件（文件名按时间戳排序）。
func (w *RotatingFile) prune() error {
	if w.opts.MaxBackups <= 0 {
		return nil
	}
	backups, err := w.Backups()
	if err != nil {
		return err
	}
	for len(backups) > w.opts.MaxBackups {
		if err := os.Remove(filepath.Join(w.dir, backups[0])); err != nil {
			return err
		}
		backups = backups[1:]
	}
	return nil
}

// Backups 返回历史文件名（旧到新）。
func (w *RotatingFile) Backups() ([]string, error) {
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		n := e.Name()
		if n != currentLog && strings.HasPrefix(n, "curator-") && strings.HasSuffix(n, ".log") {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close 关闭当前打开的文件句柄
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
