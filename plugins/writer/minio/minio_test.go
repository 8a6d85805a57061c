package minio

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/pkg/contract"
)

type fakeStore struct {
	exists  bool
	made    int
	objects map[string]string
	types   map[string]string
	err     error
}

func (f *fakeStore) BucketExists(ctx context.Context, bucket string) (bool, error) { return f.exists, f.err }
func (f *fakeStore) MakeBucket(ctx context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made++
	f.exists = true
	return nil
}
func (f *fakeStore) PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	b, _ := io.ReadAll(r)
	if f.objects == nil {
		f.objects, f.types = map[string]string{}, map[string]string{}
	}
	f.objects[bucket+"/"+object] = string(b)
	f.types[object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: int64(len(b))}, nil
}

// UT-MINIO-01: 首次写入建桶，仅一次
func TestWriteCreatesBucketOnce(t *testing.T) {
	fake := &fakeStore{}
	w := newWithClient(Options{Bucket: "corpus", Prefix: "run", CreateBucket: true}, fake)
	require.NoError(t, w.Write(context.Background(), "a.jsonl", strings.NewReader("1")))
	require.NoError(t, w.Write(context.Background(), "b.parquet", strings.NewReader("2")))
	assert.Equal(t, 1, fake.made)
	assert.Equal(t, "1", fake.objects["corpus/run/a.jsonl"])
	assert.Equal(t, "2", fake.objects["corpus/run/b.parquet"])
	assert.Equal(t, "application/x-ndjson", fake.types["run/a.jsonl"])
}

func TestWriteBucketCheckError(t *testing.T) {
	fake := &fakeStore{err: errors.New("offline")}
	w := newWithClient(Options{Bucket: "corpus", CreateBucket: true}, fake)
	err := w.Write(context.Background(), "a.jsonl", strings.NewReader("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket check")

	w = newWithClient(Options{Bucket: "corpus"}, &fakeStore{})
	assert.ErrorIs(t, w.Write(context.Background(), "..", strings.NewReader("")), contract.ErrPathInvalid)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Bucket: "b"})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	w, err := New(Options{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.NotNil(t, w.client)
}
