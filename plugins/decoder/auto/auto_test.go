package auto

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/pkg/contract"
)

type named string

func (n named) Decode(_ context.Context, fileID contract.FileID, r io.Reader) ([]contract.Document, error) {
	b, _ := io.ReadAll(r)
	return []contract.Document{{Text: string(n) + ":" + string(b), SourceFile: string(fileID)}}, nil
}

func TestDispatch(t *testing.T) {
	d, err := New(map[string]contract.Decoder{"jsonl": named("jsonl"), "text": named("text")}, "text")
	require.NoError(t, err)

	docs, err := d.Decode(context.Background(), "a/b.JSONL", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "jsonl:x", docs[0].Text, "扩展名大小写不敏感")

	docs, err = d.Decode(context.Background(), "notes.md", strings.NewReader("y"))
	require.NoError(t, err)
	assert.Equal(t, "text:y", docs[0].Text, "未装配的解码器回落到 default")
}

func TestNoFallback(t *testing.T) {
	d, err := New(map[string]contract.Decoder{"jsonl": named("jsonl")}, "")
	require.NoError(t, err)
	_, err = d.Decode(context.Background(), "x.bin", strings.NewReader(""))
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))

	_, err = New(map[string]contract.Decoder{}, "text")
	assert.Error(t, err)
}
