package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/id"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// objectAPI is the subset of the S3 client the store uses
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3 connection settings
type S3Config struct {
	Endpoint     string
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Store keeps workspace documents in an S3-compatible bucket
type S3Store struct {
	client objectAPI
	bucket string
	logger *logging.Logger
}

// NewS3Store connects to S3 (or MinIO when Endpoint is set). Static
// credentials are used when given, otherwise the default AWS chain.
func NewS3Store(ctx context.Context, cfg S3Config, logger *logging.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Store(client, cfg.Bucket, logger), nil
}

func newS3Store(client objectAPI, bucket string, logger *logging.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		logger: logging.OrNop(logger).Named("s3store"),
	}
}

// Load implements Store
func (s *S3Store) Load(ctx context.Context, wsID id.WorkspaceID) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(Key(wsID)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, wsID)
		}
		return nil, fmt.Errorf("get object %s: %w", Key(wsID), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", Key(wsID), err)
	}
	return data, nil
}

// Save implements Store
func (s *S3Store) Save(ctx context.Context, wsID id.WorkspaceID, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(Key(wsID)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", Key(wsID), err)
	}
	s.logger.Debug("S3 put object", zap.String("key", Key(wsID)), zap.Int("size", len(data)))
	return nil
}

// Delete implements Store. S3 deletes are idempotent, so existence is
// checked first to report ErrNotFound like the other stores.
func (s *S3Store) Delete(ctx context.Context, wsID id.WorkspaceID) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(Key(wsID)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, wsID)
		}
		return fmt.Errorf("head object %s: %w", Key(wsID), err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(Key(wsID)),
	}); err != nil {
		return fmt.Errorf("delete object %s: %w", Key(wsID), err)
	}
	return nil
}

// List implements Store
func (s *S3Store) List(ctx context.Context) ([]id.WorkspaceID, error) {
	var (
		ids   []id.WorkspaceID
		token *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String("workspaces/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list workspaces: %w", err)
		}
		for _, obj := range out.Contents {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(obj.Key), "workspaces/"), ".json")
			if id.HasPrefix(name, id.WorkspacePrefix) {
				ids = append(ids, id.WorkspaceID(name))
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			return ids, nil
		}
		token = out.NextContinuationToken
	}
}

func isNotFound(err error) bool {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
