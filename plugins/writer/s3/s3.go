// Package s3 将整理产物上传到 S3 存储桶。
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"

	"curator/pkg/contract"
)

// Options 为 S3 Writer 配置；凭证走 AWS SDK 默认链（环境变量/共享配置/实例角色）。
type Options struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	// Prefix 为对象键前缀，例如 "curated/2024-06"。
	Prefix string `json:"prefix,omitempty"`
	// Endpoint 可选，兼容 S3 协议的自建服务。
	Endpoint       string `json:"endpoint,omitempty"`
	ForcePathStyle bool   `json:"force_path_style,omitempty"`
}

// putter 为 S3 客户端的最小接口。
type putter interface {
	PutObjectWithContext(ctx aws.Context, in *awss3.PutObjectInput, opts ...request.Option) (*awss3.PutObjectOutput, error)
}

// Writer 每个工件一次 PutObject。
type Writer struct {
	bucket string
	prefix string
	client putter
}

var _ contract.Writer = (*Writer)(nil)

func New(opts Options) (*Writer, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("%w: s3 bucket required", contract.ErrInvalidInput)
	}
	if strings.TrimSpace(opts.Region) == "" {
		return nil, fmt.Errorf("%w: s3 region required", contract.ErrInvalidInput)
	}
	cfg := &aws.Config{Region: aws.String(opts.Region)}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.ForcePathStyle {
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}
	return newWithClient(opts, awss3.New(sess)), nil
}

func newWithClient(opts Options, c putter) *Writer {
	return &Writer{bucket: opts.Bucket, prefix: opts.Prefix, client: c}
}

// Write 读尽 r 后上传（PutObject 需要可 Seek 的 Body）。
func (w *Writer) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	key, err := contract.ObjectKey(w.prefix, id)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	in := &awss3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if ct := ContentType(key); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := w.client.PutObjectWithContext(ctx, in); err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", w.bucket, key, err)
	}
	return nil
}

// ContentType 依据扩展名推断对象类型。
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	return mime.TypeByExtension(path.Ext(key))
}
