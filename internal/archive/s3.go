package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
	"github.com/samber/oops"

	"github.com/Code-6dof/DXX-Dashboard/internal/events"
	"github.com/Code-6dof/DXX-Dashboard/internal/shared/config"
)

// S3Sink stores finalized matches in an S3-compatible bucket (AWS S3,
// MinIO, etc.) via the MinIO SDK.
type S3Sink struct {
	client *minio.Client
	bucket string
}

func NewS3Sink(cfg *config.Struct) (*S3Sink, error) {
	bucketName := cfg.Archive.S3.Bucket
	if bucketName == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	endpoint := cfg.Archive.S3.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Archive.S3.Region)
	}

	if cfg.Archive.S3.AccessKeyID == "" || cfg.Archive.S3.SecretAccessKey == "" {
		return nil, fmt.Errorf("S3 access key ID and secret access key are required")
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Archive.S3.AccessKeyID, cfg.Archive.S3.SecretAccessKey, ""),
		Secure: cfg.Archive.S3.UseSSL,
		Region: cfg.Archive.S3.Region,
	})
	if err != nil {
		return nil, oops.Wrapf(err, "failed to create MinIO client")
	}

	ctx := context.Background()
	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, oops.Wrapf(err, "failed to check bucket existence")
	}
	if !exists {
		err = minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{
			Region: cfg.Archive.S3.Region,
		})
		if err != nil {
			return nil, oops.Wrapf(err, "failed to create bucket")
		}
		log.Info().Str("bucket", bucketName).Msg("Created archive bucket")
	}

	log.Info().
		Str("bucket", bucketName).
		Str("endpoint", endpoint).
		Msg("Connected to S3 archive")

	return &S3Sink{client: minioClient, bucket: bucketName}, nil
}

func (s *S3Sink) Save(ctx context.Context, match FinalizedMatch, evs []events.Event) error {
	data, err := json.Marshal(archivedDocument{Match: match, Events: evs})
	if err != nil {
		return oops.Wrapf(err, "failed to marshal archived match")
	}
	key := "matches/" + match.ArchiveID + ".json"
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return oops.Wrapf(err, "failed to upload archived match")
	}
	return nil
}
