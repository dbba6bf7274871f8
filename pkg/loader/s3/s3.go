package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/pkg/common"
	"github.com/OFFIS-RIT/crosscheck/pkg/loader"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3FileLoader loads objects from S3 or S3 compatible storage. Sources are
// either s3://bucket/key URLs or bare keys in the default bucket.
type S3FileLoader struct {
	bucket string
	client s3API
	cache  *loader.Cache
}

// NewS3FileLoaderWithClient creates a new S3FileLoader using an existing client.
func NewS3FileLoaderWithClient(bucket string, client s3API, opts ...loader.Option) *S3FileLoader {
	return &S3FileLoader{
		bucket: bucket,
		client: client,
		cache:  loader.ApplyOptions(opts...).Cache,
	}
}

// NewS3FileLoaderParams defines the configuration parameters for
// creating a new S3FileLoader.
//
// Bucket is the default bucket for bare keys.
// Endpoint allows overriding the S3 endpoint (useful for S3-compatible
// storage like MinIO).
// AccessKey and SecretKey provide static credentials; when empty the
// default AWS credential chain is used.
type NewS3FileLoaderParams struct {
	Bucket       string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// NewS3FileLoader creates a new S3FileLoader from params.
//
// Example:
//
//	l, err := s3.NewS3FileLoader(ctx, s3.NewS3FileLoaderParams{
//		Bucket:    "papers",
//		Endpoint:  "http://localhost:9000",
//		Region:    "us-east-1",
//		AccessKey: os.Getenv("S3_ACCESS_KEY"),
//		SecretKey: os.Getenv("S3_SECRET_KEY"),
//	})
func NewS3FileLoader(ctx context.Context, params NewS3FileLoaderParams, opts ...loader.Option) (*S3FileLoader, error) {
	cfgOpts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
	}
	if params.Endpoint != "" {
		cfgOpts = append(cfgOpts, config.WithBaseEndpoint(params.Endpoint))
	}
	if params.AccessKey != "" {
		cfgOpts = append(cfgOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, common.InvalidConfiguration("s3: %v", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = params.UsePathStyle
	})

	return NewS3FileLoaderWithClient(params.Bucket, client, opts...), nil
}

// GetFileText retrieves the object named by source.
func (l *S3FileLoader) GetFileText(ctx context.Context, source string) ([]byte, error) {
	cacheKey := loader.CacheKey(source)

	return l.cache.Load(cacheKey, func() ([]byte, error) {
		bucket, key, err := l.resolve(cacheKey)
		if err != nil {
			return nil, err
		}

		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var noKey *types.NoSuchKey
			var noBucket *types.NoSuchBucket
			if errors.As(err, &noKey) || errors.As(err, &noBucket) {
				return nil, fmt.Errorf("%w: %s", common.ErrSourceNotFound, source)
			}
			return nil, err
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, err
		}

		return buf.Bytes(), nil
	})
}

func (l *S3FileLoader) resolve(source string) (bucket, key string, err error) {
	if rest, ok := strings.CutPrefix(source, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
	} else {
		bucket, key = l.bucket, strings.TrimPrefix(source, "/")
	}
	if bucket == "" || key == "" {
		return "", "", common.InvalidConfiguration("s3 source %q needs a bucket and a key", source)
	}
	return bucket, key, nil
}
