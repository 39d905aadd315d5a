package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// Compile-time check: S3Store implements Store.
var _ Store = (*S3Store)(nil)

// S3Options configures an S3Store. Endpoint and UsePathStyle target S3-compatible
// services; leave them empty for AWS.
type S3Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	Credentials  aws.CredentialsProvider
	Logger       *zap.Logger
}

// S3Store keeps artifacts in a single private bucket.
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	logger        *zap.Logger
}

// NewS3Store builds a client from explicit options.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	s3Opts := s3.Options{
		Region:                     opts.Region,
		Credentials:                opts.Credentials,
		UsePathStyle:               opts.UsePathStyle,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if opts.Endpoint != "" {
		s3Opts.BaseEndpoint = aws.String(opts.Endpoint)
	}
	return NewS3StoreFromClient(s3.New(s3Opts), opts.Bucket, opts.Logger), nil
}

// NewS3StoreFromConfig builds a client from a loaded AWS config.
func NewS3StoreFromConfig(cfg aws.Config, opts S3Options) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Region != "" {
			o.Region = opts.Region
		}
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return NewS3StoreFromClient(client, opts.Bucket, opts.Logger)
}

func NewS3StoreFromClient(client *s3.Client, bucket string, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
		logger:        logger,
	}
}

// StaticCredentials is a shorthand for a fixed key pair.
func StaticCredentials(keyID, secret string) aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(keyID, secret, "")
}

func (s *S3Store) Bucket() string {
	return s.bucket
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ACL:           types.ObjectCannedACLPrivate,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.logger.Error("failed to put object", zap.String("bucket", s.bucket), zap.String("key", key), zap.Error(err))
		return &UpstreamAPIError{Op: "put", Key: key, Err: err}
	}
	s.logger.Debug("stored object", zap.String("bucket", s.bucket), zap.String("key", key), zap.Int("bytes", len(body)))
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, &UpstreamAPIError{Op: "get", Key: key, Err: err}
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &UpstreamAPIError{Op: "get", Key: key, Err: err}
	}
	return body, nil
}

// Presign returns a GET URL for key valid for ttl, or DefaultPresignTTL when ttl is zero.
func (s *S3Store) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	// browsers render the report instead of downloading it
	if strings.HasSuffix(key, ".html") {
		input.ResponseContentType = aws.String("text/html")
	}
	result, err := s.presignClient.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", &UpstreamAPIError{Op: "presign", Key: key, Err: err}
	}
	return result.URL, nil
}

// List returns every object under prefix, following continuation tokens.
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &UpstreamAPIError{Op: "list", Key: prefix, Err: err}
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				LastModified: aws.ToTime(obj.LastModified),
				Size:         aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

// Latest returns the key under prefix with the greatest LastModified.
func (s *S3Store) Latest(ctx context.Context, prefix string) (string, error) {
	objects, err := s.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	newest, ok := Newest(objects, "")
	if !ok {
		return "", fmt.Errorf("%w: no objects under prefix %q", ErrNotFound, prefix)
	}
	return newest.Key, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
