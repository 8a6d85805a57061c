package lexical

import (
	"regexp"
	"strings"
	"unicode"

	"curator/pkg/contract"
)

// NOptions 为带长度参数的打分配置。
type NOptions struct {
	N int `json:"n,omitempty"`
}

// MinLength 统计长度 >= n（按字符计）的词数；n 缺省为 1，即词数。
func MinLength(o NOptions) contract.ScoreFunc {
	n := o.N
	if n < 1 {
		n = 1
	}
	return func(text string) (float64, error) {
		c := 0
		for _, w := range Words(text) {
			if runeLen(w) >= n {
				c++
			}
		}
		return float64(c), nil
	}
}

func WordCount(text string) (float64, error) { return float64(len(Words(text))), nil }

func MeanWordLength(text string) (float64, error) {
	ws := Words(text)
	total := 0
	for _, w := range ws {
		total += runeLen(w)
	}
	return ratio(total, len(ws)), nil
}

func LongestWord(text string) (float64, error) {
	m := 0
	for _, w := range Words(text) {
		if l := runeLen(w); l > m {
			m = l
		}
	}
	return float64(m), nil
}

// SymbolsOptions 为符号/词比配置。
type SymbolsOptions struct {
	Symbols []string `json:"symbols,omitempty"`
}

var defaultSymbols = []string{"#", "...", "…"}

// SymbolToWordRatio 为符号出现次数与词数之比。
func SymbolToWordRatio(o SymbolsOptions) contract.ScoreFunc {
	syms := o.Symbols
	if len(syms) == 0 {
		syms = defaultSymbols
	}
	return func(text string) (float64, error) {
		c := 0
		for _, s := range syms {
			c += strings.Count(text, s)
		}
		return ratio(c, len(Words(text))), nil
	}
}

// NonAlphaNumericRatio 为既非字母数字也非空白的字符占比。
func NonAlphaNumericRatio(text string) (float64, error) {
	total, c := 0, 0
	for _, r := range text {
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			c++
		}
	}
	return ratio(c, total), nil
}

func WhitespaceRatio(text string) (float64, error) {
	total, c := 0, 0
	for _, r := range text {
		total++
		if unicode.IsSpace(r) {
			c++
		}
	}
	return ratio(c, total), nil
}

var urlRe = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)

// URLRatio 为 URL 覆盖的字符占比。
func URLRatio(text string) (float64, error) {
	c := 0
	for _, m := range urlRe.FindAllString(text, -1) {
		c += runeLen(m)
	}
	return ratio(c, runeLen(text)), nil
}

func ParenthesesRatio(text string) (float64, error) {
	c := 0
	for _, r := range text {
		switch r {
		case '(', ')', '[', ']', '{', '}':
			c++
		}
	}
	return ratio(c, runeLen(text)), nil
}

var bullets = []string{"•", "-", "*", "·", "‣", "▪", "●", "◦"}

// BulletLinesRatio 为以项目符号开头的行占比。
func BulletLinesRatio(text string) (float64, error) {
	ls := Lines(text)
	c := 0
	for _, ln := range ls {
		for _, b := range bullets {
			if strings.HasPrefix(ln, b) {
				c++
				break
			}
		}
	}
	return ratio(c, len(ls)), nil
}

// EllipsisLinesRatio 为以省略号结尾的行占比。
func EllipsisLinesRatio(text string) (float64, error) {
	ls := Lines(text)
	c := 0
	for _, ln := range ls {
		if strings.HasSuffix(ln, "...") || strings.HasSuffix(ln, "…") {
			c++
		}
	}
	return ratio(c, len(ls)), nil
}

// PunctuationEndRatio 为以句末标点结尾的行占比。
func PunctuationEndRatio(text string) (float64, error) {
	ls := Lines(text)
	c := 0
	for _, ln := range ls {
		if strings.ContainsAny(lastRune(ln), `.!?"”'。！？`) {
			c++
		}
	}
	return ratio(c, len(ls)), nil
}

func lastRune(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i]&0xC0 != 0x80 {
			return s[i:]
		}
	}
	return s
}

// PhrasesOptions 为样板短语配置。
type PhrasesOptions struct {
	Phrases []string `json:"phrases,omitempty"`
}

var defaultPhrases = []string{"lorem ipsum", "terms of use", "privacy policy", "cookie policy", "all rights reserved", "enable javascript"}

// BoilerplateCount 统计样板短语出现次数（大小写不敏感）。
func BoilerplateCount(o PhrasesOptions) contract.ScoreFunc {
	ps := o.Phrases
	if len(ps) == 0 {
		ps = defaultPhrases
	}
	lowered := make([]string, 0, len(ps))
	for _, p := range ps {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return func(text string) (float64, error) {
		t := strings.ToLower(text)
		c := 0
		for _, p := range lowered {
			c += strings.Count(t, p)
		}
		return float64(c), nil
	}
}
