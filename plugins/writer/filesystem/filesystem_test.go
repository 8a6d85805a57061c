package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/pkg/contract"
)

func noTmp(t *testing.T, dir string) {
	t.Helper()
	_ = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err == nil && strings.HasPrefix(info.Name(), ".tmp-") {
			t.Fatalf("临时文件未清理: %s", p)
		}
		return nil
	})
}

// UT-WR-01: 原子写入并替换已存在目标，保留相对层级
func TestWriteAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "shards/a.jsonl", strings.NewReader("v1")))
	require.NoError(t, w.Write(context.Background(), "shards/a.jsonl", strings.NewReader("v2")))
	b, err := os.ReadFile(filepath.Join(dir, "shards", "a.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(b))
	noTmp(t, dir)
}

func TestWriteDirectAndFlat(t *testing.T) {
	dir := t.TempDir()
	off := false
	w, err := New(&Options{OutputDir: dir, Atomic: &off, Flat: true})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "x/y/z.txt", strings.NewReader("data")))
	b, err := os.ReadFile(filepath.Join(dir, "z.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))
	assert.Equal(t, dir, w.Root())
}

// UT-WR-02: 路径越界被拒绝
func TestWritePathInvalid(t *testing.T) {
	w, err := New(&Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	for _, id := range []contract.ArtifactID{"", ".", "..", "../escape.txt", "/abs.txt"} {
		err := w.Write(context.Background(), id, strings.NewReader("x"))
		assert.ErrorIs(t, err, contract.ErrPathInvalid, "id=%q", id)
	}
}

func TestNoClobber(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir, NoClobber: true})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "a.txt", strings.NewReader("1")))
	err = w.Write(context.Background(), "a.txt", strings.NewReader("2"))
	assert.ErrorIs(t, err, ErrExists)
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("read fail") }

// 源读取失败或取消时不遗留临时文件
func TestWriteFailureCleanup(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	require.NoError(t, err)
	assert.Error(t, w.Write(context.Background(), "a.txt", failReader{}))
	_, err = os.Stat(filepath.Join(dir, "a.txt"))
	assert.True(t, os.IsNotExist(err))
	noTmp(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Write(ctx, "b.txt", strings.NewReader("x")), context.Canceled)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = New(&Options{OutputDir: "  "})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
