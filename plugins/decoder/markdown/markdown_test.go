package markdown

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/pkg/contract"
)

func TestDecodeWhole(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)
	docs, err := d.Decode(context.Background(), "a.md", strings.NewReader("# T\n\n*x*\n"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "T\n\nx", docs[0].Text)

	docs, err = d.Decode(context.Background(), "e.md", strings.NewReader("<!-- only comment -->\n"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

// UT-MDD-01: 按标题分节，标题写入 section 字段
func TestDecodeSections(t *testing.T) {
	d, err := New(&Options{SectionLevel: 2})
	require.NoError(t, err)
	docs, err := d.Decode(context.Background(), "a.md", strings.NewReader("lead\n\n## One\n\nbody one\n\n## Two\n\nbody two\n"))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Nil(t, docs[0].Fields)
	assert.Equal(t, "One", docs[1].Fields[SectionField])
	assert.Equal(t, "Two\n\nbody two", docs[2].Text)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := New(&Options{SectionLevel: 7})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	d, _ := New(nil)
	_, err = d.Decode(context.Background(), "b.md", strings.NewReader("\xff"))
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}
