package sink

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// s3MaxDeleteBatch is the DeleteObjects per-request key limit.
const s3MaxDeleteBatch = 1000

// S3API is the subset of the S3 client used by S3Sink.
type S3API interface {
	s3.ListObjectsV2APIClient
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink stores objects in one S3 bucket.
type S3Sink struct {
	client S3API
	bucket string
	logger zerolog.Logger
}

// NewS3Sink creates a sink for bucket.
func NewS3Sink(client S3API, bucket string, logger zerolog.Logger) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		logger: logger.With().Str("bucket", bucket).Logger(),
	}
}

// List implements Sink.
func (s *S3Sink) List(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, input)

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// DeleteBatch implements Sink. Per-key failures reported by S3 fail the
// whole batch.
func (s *S3Sink) DeleteBatch(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) > s3MaxDeleteBatch {
		return ErrBatchTooLarge
	}

	toDelete := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		toDelete = append(toDelete, types.ObjectIdentifier{Key: aws.String(key)})
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: toDelete,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("deleting blob batch: %w", err)
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return fmt.Errorf("deleting blob batch: %d of %d keys failed, first %q: %s",
			len(out.Errors), len(keys), aws.ToString(first.Key), aws.ToString(first.Message))
	}

	s.logger.Debug().Int("keys", len(keys)).Msg("Deleted blob batch")
	return nil
}

// PutObject implements Sink.
func (s *S3Sink) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("putting %q: %w", key, err)
	}
	return nil
}

// MaxDeleteBatch implements Sink.
func (s *S3Sink) MaxDeleteBatch() int {
	return s3MaxDeleteBatch
}
