// Package blob holds the attachment stores: an S3 compatible bucket for
// deployments and a badger-backed store for single-node setups and tests.
package blob

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ contract.BlobStore = (*S3Store)(nil)

const aclHeader = "x-amz-acl"

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type S3Store struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

func NewS3Store(cfg S3Config, log *slog.Logger) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, log: log}, nil
}

// EnsureBucket creates the bucket when it is missing.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	s.log.Info("Creating media bucket", "bucket", s.bucket)
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
}

func (s *S3Store) Put(ctx context.Context, obj contract.PutObject) error {
	opts := minio.PutObjectOptions{ContentType: obj.ContentType}
	if obj.Policy != "" {
		opts.UserMetadata = map[string]string{aclHeader: string(obj.Policy)}
	}
	info, err := s.client.PutObject(ctx, s.bucket, obj.Key, obj.Body, obj.Size, opts)
	if err != nil {
		return err
	}
	s.log.Debug("Media stored", "key", info.Key, "size", info.Size)
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (contract.Object, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return contract.Object{}, translate(err)
	}
	// GetObject is lazy, Stat is the first round-trip.
	stat, err := object.Stat()
	if err != nil {
		_ = object.Close()
		return contract.Object{}, translate(err)
	}
	return contract.Object{Body: object, ContentType: stat.ContentType, Size: stat.Size}, nil
}

// Delete removes an object; S3 reports success for a missing key too.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	return translate(s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}))
}

func translate(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%v: %w", err, errors.ErrNotFound)
	}
	return err
}
