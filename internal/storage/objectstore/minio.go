package objectstore

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Logger    zerolog.Logger
}

// Minio implements Store over a MinIO/S3 endpoint.
type Minio struct {
	client *minio.Client
	log    zerolog.Logger
}

func NewMinio(cfg MinioConfig) (*Minio, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is empty")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("credentials are empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	return &Minio{
		client: client,
		log:    cfg.Logger.With().Str("component", "objectstore").Logger(),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Minio) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	s.log.Info().Str("bucket", bucket).Msg("bucket created")
	return nil
}

func (s *Minio) Download(ctx context.Context, bucket, key string) (string, error) {
	f, err := os.CreateTemp("", "objectstore-*"+path.Ext(key))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	local := f.Name()
	f.Close()

	if err := s.client.FGetObject(ctx, bucket, key, local, minio.GetObjectOptions{}); err != nil {
		os.Remove(local)
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return "", fmt.Errorf("download %s/%s: %w", bucket, key, ErrNotFound)
		}
		return "", fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}

	s.log.Debug().Str("bucket", bucket).Str("key", key).Str("local", local).Msg("object downloaded")
	return local, nil
}

func (s *Minio) Upload(ctx context.Context, localPath, bucket, key string, opts UploadOptions) error {
	if opts.RemoveLocal {
		defer func() {
			if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
				s.log.Warn().Err(err).Str("local", localPath).Msg("failed to remove local file")
			}
		}()
	}

	_, err := s.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}

	s.log.Debug().Str("bucket", bucket).Str("key", key).Msg("object uploaded")
	return nil
}
