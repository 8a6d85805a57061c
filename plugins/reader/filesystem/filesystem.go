// Package filesystem 实现基于本地目录的分片发现：每个常规文件即一个输入分区。
package filesystem

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"curator/pkg/contract"
)

// Options 为 FileSystem Reader 配置。
type Options struct {
	// BufSize 读缓冲大小（字节），默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames 递归时跳过的目录基名（大小写不敏感），例如 [".git"]。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Extensions 仅接受这些扩展名（如 [".jsonl", ".txt"]）；为空表示全部。
	Extensions []string `json:"extensions"`
	// IncludeHidden 为 false 时跳过以 "." 开头的文件与目录。
	IncludeHidden bool `json:"include_hidden"`
}

// FileSystem 按稳定字典序遍历分片文件。
type FileSystem struct {
	bufSize       int
	excludeDir    map[string]struct{}
	exts          map[string]struct{}
	includeHidden bool
}

var _ contract.Reader = (*FileSystem)(nil)

func New(opts *Options) *FileSystem {
	r := &FileSystem{bufSize: 64 * 1024, excludeDir: map[string]struct{}{}, exts: map[string]struct{}{}}
	if opts == nil {
		return r
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	for _, n := range opts.ExcludeDirNames {
		if n != "" {
			r.excludeDir[strings.ToLower(n)] = struct{}{}
		}
	}
	for _, e := range opts.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		r.exts[e] = struct{}{}
	}
	r.includeHidden = opts.IncludeHidden
	return r
}

// Iterate 对 roots 下每个接受的常规文件调用 yield；roots 为空或仅 "-" 时读取 STDIN。
// 同一文件在多个 root 中出现时只产出一次。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(contract.FileID("stdin"), newBufferedCloser(os.Stdin, r.bufSize))
	}
	for _, s := range roots {
		if s == "-" {
			return errors.New("stdin '-' cannot be mixed with other roots")
		}
	}
	seen := map[contract.FileID]struct{}{}
	for _, root := range roots {
		paths, err := r.collect(ctx, root)
		if err != nil {
			return err
		}
		for _, p := range paths {
			id := contract.NormalizeFileID(p)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if err := r.open(ctx, p, id, yield); err != nil {
				return err
			}
		}
	}
	return nil
}

// collect 返回 root 下接受的文件路径（字典序）；目录符号链接不跟随。
func (r *FileSystem) collect(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		// 显式给出的单文件不受扩展名/隐藏规则约束
		if info.Mode().IsRegular() {
			return []string{root}, nil
		}
		return nil, nil
	}
	var out []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p == root {
				return nil
			}
			if _, skip := r.excludeDir[strings.ToLower(name)]; skip || (!r.includeHidden && strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !r.includeHidden && strings.HasPrefix(name, ".") {
			return nil
		}
		if len(r.exts) > 0 {
			if _, ok := r.exts[strings.ToLower(filepath.Ext(name))]; !ok {
				return nil
			}
		}
		// 符号链接仅在指向常规文件时接受
		if d.Type()&fs.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil || !t.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (r *FileSystem) open(ctx context.Context, p string, id contract.FileID, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(id, brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
