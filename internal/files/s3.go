package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config configures an S3-compatible file backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3 stores files in an S3-compatible bucket under
// prefix/agent_uuid/file_id.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates an S3-backed file backend.
func NewS3(ctx context.Context, cfg *S3Config) (*S3, error) {
	if cfg == nil {
		return nil, fmt.Errorf("s3 file backend: config is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ID returns "s3".
func (s *S3) ID() string { return "s3" }

// Store writes the file, creating or replacing it.
func (s *S3) Store(ctx context.Context, agentUUID, fileID string, data []byte, opts StoreOptions) (*Metadata, error) {
	key := s.objectKey(agentUUID, fileID)

	priorSize, exists, err := s.headSize(ctx, key)
	if err != nil {
		return nil, err
	}

	input := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	}
	if opts.MediaType != "" {
		input.ContentType = aws.String(opts.MediaType)
	}
	if len(opts.Extras) > 0 {
		input.Metadata = opts.Extras
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("s3 put object: %w", err)
	}

	meta := &Metadata{
		FileID:          fileID,
		Filename:        opts.Filename,
		StorageLocation: fmt.Sprintf("s3://%s/%s", s.bucket, key),
		Size:            int64(len(data)),
		Timestamp:       time.Now().UTC(),
		IsUpdate:        exists,
		BackendID:       s.ID(),
		Extras:          opts.Extras,
	}
	if exists {
		meta.PriorSize = priorSize
	}
	return meta, nil
}

// Update replaces an existing file; ErrNotFound when absent.
func (s *S3) Update(ctx context.Context, agentUUID, fileID string, data []byte, opts StoreOptions) (*Metadata, error) {
	key := s.objectKey(agentUUID, fileID)
	_, exists, err := s.headSize(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return s.Store(ctx, agentUUID, fileID, data, opts)
}

// Retrieve reads the file bytes.
func (s *S3) Retrieve(ctx context.Context, agentUUID, fileID string) ([]byte, error) {
	key := s.objectKey(agentUUID, fileID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read object: %w", err)
	}
	return data, nil
}

// Delete removes the file. Absent objects are not an error.
func (s *S3) Delete(ctx context.Context, agentUUID, fileID string) error {
	key := s.objectKey(agentUUID, fileID)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}); err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *S3) Close() error { return nil }

// headSize returns the current object size when the object exists.
func (s *S3) headSize(ctx context.Context, key string) (int64, bool, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err == nil {
		var size int64
		if out.ContentLength != nil {
			size = *out.ContentLength
		}
		return size, true, nil
	}
	if isNotFound(err) {
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("s3 head object: %w", err)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return strings.EqualFold(code, "NotFound") || strings.EqualFold(code, "NoSuchKey")
	}
	return false
}

func (s *S3) objectKey(agentUUID, fileID string) string {
	if s.prefix == "" {
		return path.Join(agentUUID, fileID)
	}
	return path.Join(s.prefix, agentUUID, fileID)
}
