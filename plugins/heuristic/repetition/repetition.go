// Package repetition 提供重复度打分函数（行/段落重复、n-gram 覆盖）。
package repetition

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"curator/pkg/contract"
	"curator/plugins/heuristic/lexical"
)

var paraSep = regexp.MustCompile(`\n\s*\n`)

// Paragraphs 返回以空行分隔的非空段落。
func Paragraphs(text string) []string {
	var out []string
	for _, p := range paraSep.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dupCount 返回重复出现（首次之后）的片段数与其字符数。
func dupCount(items []string) (n, chars int) {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			n++
			chars += utf8.RuneCountInString(it)
			continue
		}
		seen[it] = struct{}{}
	}
	return n, chars
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// RepeatedLinesRatio 为重复行数与总行数之比。
func RepeatedLinesRatio(text string) (float64, error) {
	ls := lexical.Lines(text)
	n, _ := dupCount(ls)
	return ratio(n, len(ls)), nil
}

func RepeatedParagraphsRatio(text string) (float64, error) {
	ps := Paragraphs(text)
	n, _ := dupCount(ps)
	return ratio(n, len(ps)), nil
}

// RepeatedLinesCharRatio 为重复行字符数与全部行字符数之比。
func RepeatedLinesCharRatio(text string) (float64, error) {
	ls := lexical.Lines(text)
	total := 0
	for _, l := range ls {
		total += utf8.RuneCountInString(l)
	}
	_, chars := dupCount(ls)
	return ratio(chars, total), nil
}

// NgramOptions 为 n-gram 打分配置。
type NgramOptions struct {
	N int `json:"n,omitempty"`
}

func normWords(text string) ([]string, []int, int) {
	ws := lexical.Words(text)
	lens := make([]int, len(ws))
	total := 0
	for i, w := range ws {
		ws[i] = strings.ToLower(w)
		lens[i] = utf8.RuneCountInString(w)
		total += lens[i]
	}
	return ws, lens, total
}

// TopNgramCharRatio 为出现最多的词 n-gram（需出现至少两次）所覆盖字符与全部词字符之比；n 缺省 2。
func TopNgramCharRatio(o NgramOptions) contract.ScoreFunc {
	n := o.N
	if n < 1 {
		n = 2
	}
	return func(text string) (float64, error) {
		ws, lens, total := normWords(text)
		if len(ws) < n {
			return 0, nil
		}
		counts := map[string]int{}
		chars := map[string]int{}
		best, bestKey := 0, ""
		for i := 0; i+n <= len(ws); i++ {
			k := strings.Join(ws[i:i+n], " ")
			counts[k]++
			if _, ok := chars[k]; !ok {
				c := 0
				for _, l := range lens[i : i+n] {
					c += l
				}
				chars[k] = c
			}
			if counts[k] > best || (counts[k] == best && chars[k] > chars[bestKey]) {
				best, bestKey = counts[k], k
			}
		}
		if best < 2 {
			return 0, nil
		}
		return ratio(best*chars[bestKey], total), nil
	}
}

// DuplicateNgramCharRatio 为属于重复 n-gram 的词字符占比（每个词只计一次）；n 缺省 5。
func DuplicateNgramCharRatio(o NgramOptions) contract.ScoreFunc {
	n := o.N
	if n < 1 {
		n = 5
	}
	return func(text string) (float64, error) {
		ws, lens, total := normWords(text)
		if len(ws) < n {
			return 0, nil
		}
		first := map[string]int{}
		covered := make([]bool, len(ws))
		for i := 0; i+n <= len(ws); i++ {
			k := strings.Join(ws[i:i+n], " ")
			if j, ok := first[k]; ok {
				for x := 0; x < n; x++ {
					covered[i+x] = true
					covered[j+x] = true
				}
				continue
			}
			first[k] = i
		}
		c := 0
		for i, cv := range covered {
			if cv {
				c += lens[i]
			}
		}
		return ratio(c, total), nil
	}
}
