// Package publish uploads committed style documents to S3-compatible
// object storage so map clients can fetch them directly.
package publish

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/emuanalytics/editor/internal/style"
)

type Service struct {
	client *minio.Client
	bucket string
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &Service{client: client, bucket: bucket}, nil
}

// Publish uploads the document as styles/<id>.json, creating the bucket
// on first use, and returns the object path.
func (s *Service) Publish(ctx context.Context, styleID string, doc *style.Style) (string, error) {
	raw, err := doc.Encode()
	if err != nil {
		return "", err
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "", fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}

	object := "styles/" + styleID + ".json"
	if _, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	}); err != nil {
		return "", fmt.Errorf("upload style %s: %w", object, err)
	}
	return s.bucket + "/" + object, nil
}
