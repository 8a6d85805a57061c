// Package unicode 提供去重前的文本规范化变换：Unicode 规范形式、控制字符清理与空白折叠。
package unicode

import (
	"context"
	"fmt"
	"strings"
	stdunicode "unicode"

	"golang.org/x/text/unicode/norm"

	"curator/pkg/contract"
)

type Options struct {
	// Form 为 NFC|NFD|NFKC|NFKD，默认 NFKC；"none" 关闭。
	Form string `json:"form,omitempty"`
	// StripControl 删除除换行/制表符外的控制字符与零宽字符。
	StripControl bool `json:"strip_control,omitempty"`
	// CollapseWhitespace 将行内连续空白折叠为单个空格（保留换行）。
	CollapseWhitespace bool `json:"collapse_whitespace,omitempty"`
	Trim               bool `json:"trim,omitempty"`
	DropEmpty          bool `json:"drop_empty,omitempty"`
}

type Transform struct {
	form     *norm.Form
	strip    bool
	collapse bool
	trim     bool
	drop     bool
}

var _ contract.Transformer = (*Transform)(nil)

func New(opts *Options) (*Transform, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	t := &Transform{strip: o.StripControl, collapse: o.CollapseWhitespace, trim: o.Trim, drop: o.DropEmpty}
	var f norm.Form
	switch strings.ToUpper(o.Form) {
	case "", "NFKC":
		f = norm.NFKC
	case "NFC":
		f = norm.NFC
	case "NFD":
		f = norm.NFD
	case "NFKD":
		f = norm.NFKD
	case "NONE":
		return t, nil
	default:
		return nil, fmt.Errorf("%w: unicode form %q", contract.ErrInvalidInput, o.Form)
	}
	t.form = &f
	return t, nil
}

// Normalize 对文本执行配置的规范化步骤。
func (t *Transform) Normalize(s string) string {
	if t.form != nil {
		s = t.form.String(s)
	}
	if t.strip {
		s = strings.Map(func(r rune) rune {
			if r == '\n' || r == '\t' {
				return r
			}
			if stdunicode.IsControl(r) || stdunicode.Is(stdunicode.Cf, r) {
				return -1
			}
			return r
		}, s)
	}
	if t.collapse {
		lines := strings.Split(s, "\n")
		for i, ln := range lines {
			lines[i] = strings.Join(strings.Fields(ln), " ")
		}
		s = strings.Join(lines, "\n")
	}
	if t.trim {
		s = strings.TrimSpace(s)
	}
	return s
}

func (t *Transform) Transform(_ context.Context, d contract.Document) (contract.Document, bool, error) {
	d.Text = t.Normalize(d.Text)
	if t.drop && strings.TrimSpace(d.Text) == "" {
		return d, false, nil
	}
	return d, true, nil
}
