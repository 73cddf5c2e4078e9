package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned by Download for a missing object.
var ErrNotFound = errors.New("backup object not found")

// Sink stores backup objects.
type Sink interface {
	Upload(ctx context.Context, name string, r io.Reader) error
	Download(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirSink keeps backups as files below a local directory.
type DirSink struct {
	Dir string
}

func (s DirSink) Upload(ctx context.Context, name string, r io.Reader) error {
	p := filepath.Join(s.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p + ".tmp")
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), p)
}

func (s DirSink) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, filepath.FromSlash(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// MinioSink stores backups in a MinIO or other S3-compatible bucket.
type MinioSink struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioSink(client *minio.Client, bucket, prefix string) *MinioSink {
	return &MinioSink{client: client, bucket: bucket, prefix: prefix}
}

// DialMinio connects with static credentials.
func DialMinio(endpoint, accessKey, secretKey string, secure bool) (*minio.Client, error) {
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
}

func (s *MinioSink) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *MinioSink) Upload(ctx context.Context, name string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (s *MinioSink) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.key(name)
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
}

// S3Sink stores backups in an AWS S3 bucket using multipart uploads.
type S3Sink struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func NewS3Sink(client *s3.Client, bucket, prefix string) *S3Sink {
	return &S3Sink{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = 8 * 1024 * 1024
		}),
		bucket: bucket,
		prefix: prefix,
	}
}

// DialS3 builds a client from the default AWS configuration chain.
func DialS3(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

func (s *S3Sink) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *S3Sink) Upload(ctx context.Context, name string, r io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   r,
	})
	return err
}

func (s *S3Sink) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return out.Body, nil
}
