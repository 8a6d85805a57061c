// Package lexical 提供基于词与字符统计的打分函数；均为纯函数。
package lexical

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Words 返回至少含一个字母或数字的空白分隔词，去除首尾标点。
func Words(text string) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		w := strings.TrimFunc(f, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
		if strings.IndexFunc(w, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Lines 返回去除首尾空白后的非空行。
func Lines(text string) []string {
	var out []string
	for _, ln := range strings.Split(text, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
