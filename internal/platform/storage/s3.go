package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Sink stores artifacts in an S3 bucket. Credentials come from the
// default AWS credential chain.
type S3Sink struct {
	client *s3.S3
	bucket string
	logger *slog.Logger
}

func NewS3Sink(bucket, region string, logger *slog.Logger) (*S3Sink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket name")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return &S3Sink{
		client: s3.New(sess),
		bucket: bucket,
		logger: logger.With("component", "s3_sink", "bucket", bucket),
	}, nil
}

func (s *S3Sink) Save(ctx context.Context, path string, data []byte) (SavedObject, error) {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return SavedObject{}, fmt.Errorf("uploading artifact to s3: %w", err)
	}

	s.logger.InfoContext(ctx, "Artifact uploaded", "path", path, "size", len(data))
	return SavedObject{Path: path, Size: int64(len(data))}, nil
}

func (s *S3Sink) Open(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching artifact from s3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading artifact body: %w", err)
	}
	return data, nil
}
