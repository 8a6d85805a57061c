// Package minio 将整理产物上传到 MinIO（或兼容 S3 的对象存储）。
package minio

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"curator/pkg/contract"
	s3w "curator/plugins/writer/s3"
)

type Options struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	// CreateBucket 为 true 时首次写入前确保桶存在。
	CreateBucket bool `json:"create_bucket,omitempty"`
}

// objectStore 为 minio.Client 的最小接口。
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Writer struct {
	bucket string
	prefix string
	create bool
	client objectStore

	once    sync.Once
	bootErr error
}

var _ contract.Writer = (*Writer)(nil)

func New(opts Options) (*Writer, error) {
	if strings.TrimSpace(opts.Endpoint) == "" || strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("%w: minio endpoint and bucket required", contract.ErrInvalidInput)
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return newWithClient(opts, client), nil
}

func newWithClient(opts Options, c objectStore) *Writer {
	return &Writer{bucket: opts.Bucket, prefix: opts.Prefix, create: opts.CreateBucket, client: c}
}

func (w *Writer) ensureBucket(ctx context.Context) error {
	w.once.Do(func() {
		if !w.create {
			return
		}
		ok, err := w.client.BucketExists(ctx, w.bucket)
		if err != nil {
			w.bootErr = fmt.Errorf("minio bucket check: %w", err)
			return
		}
		if !ok {
			if err := w.client.MakeBucket(ctx, w.bucket, minio.MakeBucketOptions{}); err != nil {
				w.bootErr = fmt.Errorf("minio make bucket: %w", err)
			}
		}
	})
	return w.bootErr
}

// Write 以流式上传（size=-1，由客户端分块）。
func (w *Writer) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	key, err := contract.ObjectKey(w.prefix, id)
	if err != nil {
		return err
	}
	if err := w.ensureBucket(ctx); err != nil {
		return err
	}
	_, err = w.client.PutObject(ctx, w.bucket, key, r, -1, minio.PutObjectOptions{ContentType: s3w.ContentType(key)})
	if err != nil {
		return fmt.Errorf("minio put %s/%s: %w", w.bucket, key, err)
	}
	return nil
}
