package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/pkg/contract"
)

func score(t *testing.T, fn contract.ScoreFunc, text string) float64 {
	t.Helper()
	v, err := fn(text)
	require.NoError(t, err)
	return v
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"Hello", "world", "it's", "42"}, Words("Hello, world! -- it's (42)"))
	assert.Empty(t, Words(" ... ### "))
	assert.Equal(t, []string{"a", "b"}, Lines(" a \n\n  b\n"))
}

// UT-HEU-01: min_length n=5 ["hi", "hello there"]
func TestMinLength(t *testing.T) {
	fn := MinLength(NOptions{N: 5})
	assert.Equal(t, 0.0, score(t, fn, "hi"))
	assert.Equal(t, 2.0, score(t, fn, "hello there"))
	assert.Equal(t, 3.0, score(t, MinLength(NOptions{}), "a bb ccc"), "缺省 n=1 即词数")
}

func TestWordStats(t *testing.T) {
	assert.Equal(t, 3.0, score(t, WordCount, "one two, three."))
	assert.Equal(t, 2.0, score(t, MeanWordLength, "a bbb"))
	assert.Equal(t, 0.0, score(t, MeanWordLength, ""))
	assert.Equal(t, 5.0, score(t, LongestWord, "héllo hi"))
}

func TestCharRatios(t *testing.T) {
	assert.Equal(t, 0.5, score(t, SymbolToWordRatio(SymbolsOptions{}), "#tag word ... more more"))
	assert.Equal(t, 1.0, score(t, SymbolToWordRatio(SymbolsOptions{Symbols: []string{"@"}}), "@a"))
	assert.InDelta(t, 0.25, score(t, NonAlphaNumericRatio, "ab!?aaaa"), 1e-9)
	assert.InDelta(t, 0.5, score(t, WhitespaceRatio, "a b "), 1e-9)
	assert.InDelta(t, 16.0/20.0, score(t, URLRatio, "see http://x.io/abc."), 1e-9)
	assert.Equal(t, 0.0, score(t, URLRatio, ""))
	assert.Equal(t, 0.5, score(t, ParenthesesRatio, "(a)b"))
}

func TestLineRatios(t *testing.T) {
	text := "- item one\n• item two\nA sentence.\nTrailing…\nno end"
	assert.InDelta(t, 0.4, score(t, BulletLinesRatio, text), 1e-9)
	assert.InDelta(t, 0.2, score(t, EllipsisLinesRatio, text), 1e-9)
	assert.InDelta(t, 0.2, score(t, PunctuationEndRatio, text), 1e-9)
	assert.Equal(t, 1.0, score(t, PunctuationEndRatio, "你好。"))
	assert.Equal(t, 0.0, score(t, BulletLinesRatio, ""))
}

func TestBoilerplate(t *testing.T) {
	assert.Equal(t, 2.0, score(t, BoilerplateCount(PhrasesOptions{}), "Privacy Policy | Terms of Use"))
	assert.Equal(t, 1.0, score(t, BoilerplateCount(PhrasesOptions{Phrases: []string{" Subscribe "}}), "please subscribe now"))
}
