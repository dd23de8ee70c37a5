package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures an S3Store.
type S3Options struct {
	Bucket string
	Region string
	Prefix string

	// Endpoint selects an S3-compatible service and switches to path-style
	// addressing.
	Endpoint string

	AccessKeyID     string
	SecretAccessKey string
}

type s3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3Deleter interface {
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store uploads through the multipart manager and deletes by key.
type S3Store struct {
	bucket   string
	prefix   string
	uploader s3Uploader
	client   s3Deleter
}

func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 store requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(opts.Bucket, opts.Prefix, manager.NewUploader(client), client), nil
}

func newS3Store(bucket, prefix string, uploader s3Uploader, client s3Deleter) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{bucket: bucket, prefix: prefix, uploader: uploader, client: client}
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return out.Location, nil
}

func (s *S3Store) Delete(ctx context.Context, rawURL string) error {
	objectKey, err := s.objectKey(rawURL)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%w: %s", ErrNotFound, objectKey)
		}
		return fmt.Errorf("delete %s: %w", objectKey, err)
	}
	return nil
}

// objectKey recovers the object key from an upload Location. Both
// virtual-hosted and path-style URLs are accepted.
func (s *S3Store) objectKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	p := strings.TrimPrefix(u.Path, "/")
	if !strings.HasPrefix(u.Host, s.bucket+".") {
		if !strings.HasPrefix(p, s.bucket+"/") {
			return "", fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
		}
		p = strings.TrimPrefix(p, s.bucket+"/")
	}
	if !strings.HasPrefix(p, s.prefix) {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	if _, err := CleanKey(strings.TrimPrefix(p, s.prefix)); err != nil {
		return "", err
	}
	return p, nil
}
