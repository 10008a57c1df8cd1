package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
)

// S3Config holds configuration for S3-compatible storage
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for DO Spaces, R2, MinIO
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectPutter is the part of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader archives pass artifacts to S3-compatible storage
type S3Uploader struct {
	client ObjectPutter
	bucket string
}

func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "load aws config")
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return NewS3UploaderWithClient(client, cfg.Bucket), nil
}

func NewS3UploaderWithClient(client ObjectPutter, bucket string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket}
}

// Upload uploads data to S3 with the given key
func (u *S3Uploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return eris.Wrapf(err, "put object %s", key)
	}
	return nil
}

// UploadArtifacts copies the given output files under a per-pass prefix.
// Missing files are skipped. It returns the keys written.
func (u *S3Uploader) UploadArtifacts(ctx context.Context, a *Artifacts, region, passID string, at time.Time, names ...string) ([]string, error) {
	prefix := ArtifactPrefix(region, passID, at)

	var keys []string
	for _, name := range names {
		data, err := os.ReadFile(a.Path(name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return keys, eris.Wrapf(err, "read %s", name)
		}

		key := path.Join(prefix, name)
		if err := u.Upload(ctx, key, bytes.NewReader(data), contentTypeFor(name)); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ArtifactPrefix is the key prefix for one pass: phones/<region>/<date>/<pass>.
func ArtifactPrefix(region, passID string, at time.Time) string {
	region = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(region), " ", "-"))
	if region == "" {
		region = "default"
	}
	return fmt.Sprintf("phones/%s/%s/%s", region, at.Format("2006-01-02"), passID)
}

func contentTypeFor(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
