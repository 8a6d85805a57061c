package parquetio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/pkg/contract"
)

func TestFileReadWriteSeek(t *testing.T) {
	w := NewWriter()
	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = w.Seek(1, io.SeekStart)
	require.NoError(t, err)
	_, err = w.Write([]byte("EL"))
	require.NoError(t, err)
	assert.Equal(t, "hELlo", string(w.Bytes()))

	h, err := w.Open("")
	require.NoError(t, err)
	pos, err := h.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 3, pos)
	b, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "lo", string(b))

	_, err = h.Seek(-10, io.SeekCurrent)
	assert.Error(t, err)
	_, err = h.Seek(0, 9)
	assert.Error(t, err)
	require.NoError(t, h.Close())
}

func TestRowRoundTrip(t *testing.T) {
	d := contract.Document{ID: "id1", Text: "t", SourceFile: "a.jsonl", Fields: contract.Fields{"z": int64(3), "a": 0.25, "ok": true, "s": "x"}}
	r, err := ToRow(d)
	require.NoError(t, err)
	assert.Equal(t, `{"a":0.25,"ok":true,"s":"x","z":3}`, r.FieldsJSON)
	back, err := FromRow(r)
	require.NoError(t, err)
	assert.Equal(t, d, back)

	empty, err := ToRow(contract.Document{Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, empty.FieldsJSON)

	_, err = FromRow(Row{FieldsJSON: "{bad"})
	assert.Error(t, err)
}
