package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/shinyes/vidstore/internal/config"
)

const defaultPresignTTL = time.Hour

type S3Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	presignTTL time.Duration
	spoolDir   string
}

func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessSecret, "")),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &S3Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		presignTTL: ttl,
		spoolDir:   cfg.SpoolDir,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, contentType string, data []byte) (int64, error) {
	return s.PutStream(ctx, key, contentType, bytes.NewReader(data), int64(len(data)))
}

// PutStream relies on PutObject being atomic: an aborted upload never
// replaces the previous object. Readers that cannot seek are spooled to a
// temp file first so the request carries a length and a signable payload.
func (s *S3Store) PutStream(ctx context.Context, key string, contentType string, reader io.Reader, size int64) (int64, error) {
	body, n, release, err := s.spool(reader, size)
	if err != nil {
		return 0, err
	}
	defer release()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		Body:          body,
		ContentLength: aws.Int64(n),
	})
	if err != nil {
		return 0, fmt.Errorf("put s3 object: %w", err)
	}
	return n, nil
}

func (s *S3Store) spool(reader io.Reader, size int64) (io.ReadSeeker, int64, func(), error) {
	if rs, ok := reader.(io.ReadSeeker); ok && size >= 0 {
		return rs, size, func() {}, nil
	}

	f, err := os.CreateTemp(s.spoolDir, "vidstore-s3-*")
	if err != nil {
		return nil, 0, nil, fmt.Errorf("create spool file: %w", err)
	}
	release := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}
	n, err := io.Copy(f, reader)
	if err != nil {
		release()
		return nil, 0, nil, fmt.Errorf("spool object: %w", err)
	}
	if size >= 0 && n != size {
		release()
		return nil, 0, nil, fmt.Errorf("put s3 object: size mismatch expected=%d actual=%d", size, n)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		release()
		return nil, 0, nil, fmt.Errorf("rewind spool file: %w", err)
	}
	return f, n, release, nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3NotFound(fmt.Errorf("get s3 object: %w", err))
	}
	return obj.Body, nil
}

func (s *S3Store) OpenRange(ctx context.Context, key string, start int64, end int64) (io.ReadCloser, error) {
	if start < 0 {
		return nil, fmt.Errorf("invalid range start")
	}
	if end >= 0 && end < start {
		return nil, fmt.Errorf("invalid range end")
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if start > 0 || end >= 0 {
		if end >= 0 {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", start, end))
		} else {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-", start))
		}
	}

	obj, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, mapS3NotFound(fmt.Errorf("get s3 object with range: %w", err))
	}
	return obj.Body, nil
}

func (s *S3Store) Stat(ctx context.Context, key string) (int64, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, mapS3NotFound(fmt.Errorf("head s3 object: %w", err))
	}
	return aws.ToInt64(head.ContentLength), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3 object: %w", err)
	}
	return nil
}

func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		return "", err
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign s3 object: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head s3 bucket %s: %w", s.bucket, err)
	}
	return nil
}

func mapS3NotFound(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
