package pdfstore

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ObjectStore is the bucket surface the resolver and the query commands
// need from attachment storage.
type ObjectStore interface {
	// EnsureBucket creates the bucket if it does not exist yet.
	EnsureBucket(ctx context.Context) error

	// Exists reports whether an object is already stored at the path.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Put writes one PDF payload at the path.
	Put(ctx context.Context, objectPath string, data []byte) error

	// PresignedGet returns a time-limited download URL for a stored object.
	PresignedGet(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
}

// MinIOConfig holds the object storage connection settings.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore implements ObjectStore against MinIO or any S3-compatible
// endpoint.
type MinIOStore struct {
	client *minio.Client
	bucket string
	log    *zap.Logger
}

var _ ObjectStore = (*MinIOStore)(nil)

// NewMinIO connects an object store client. The connection is lazy; use
// EnsureBucket to verify reachability.
func NewMinIO(cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pdfstore: create client")
	}
	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		log:    zap.L().With(zap.String("component", "pdfstore"), zap.String("bucket", cfg.Bucket)),
	}, nil
}

// EnsureBucket implements ObjectStore.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return eris.Wrapf(err, "pdfstore: check bucket %s", s.bucket)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return eris.Wrapf(err, "pdfstore: create bucket %s", s.bucket)
	}
	s.log.Info("created bucket")
	return nil
}

// Exists implements ObjectStore.
func (s *MinIOStore) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectPath, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, eris.Wrapf(err, "pdfstore: stat %s", objectPath)
}

// Put implements ObjectStore.
func (s *MinIOStore) Put(ctx context.Context, objectPath string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectPath, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return eris.Wrapf(err, "pdfstore: put %s", objectPath)
	}
	return nil
}

// PresignedGet implements ObjectStore.
func (s *MinIOStore) PresignedGet(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectPath, expiry, nil)
	if err != nil {
		return "", eris.Wrapf(err, "pdfstore: presign %s", objectPath)
	}
	return u.String(), nil
}
