package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gcpmetadata "cloud.google.com/go/compute/metadata"
	"github.com/google/uuid"

	"github.com/geoconvert/geoconvert/internal/geoerr"
)

// S3Backend stores blobs in an S3-compatible object store (AWS S3 or a
// MinIO deployment reached through a custom endpoint).
type S3Backend struct {
	client       *s3.Client
	presigner    *s3.PresignClient
	uploadBucket string
	outputBucket string
}

// S3Options configures NewS3Backend. Endpoint is empty for real AWS S3;
// set it to a MinIO (or other S3-compatible) base URL otherwise.
type S3Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	UploadBucket    string
	OutputBucket    string
}

// NewS3Backend builds an S3-backed Backend. When opts.Region is empty and
// the process runs on GCE, it uses the instance's zone name as the region,
// the way the teacher's exporter options default from
// cloud.google.com/go/compute/metadata.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	region := opts.Region
	if region == "" && gcpmetadata.OnGCE() {
		if zone, err := gcpmetadata.Zone(); err == nil {
			region = zone
		}
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	if opts.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.UpstreamError, "storage: loading AWS config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return &S3Backend{
		client:       client,
		presigner:    s3.NewPresignClient(client),
		uploadBucket: opts.UploadBucket,
		outputBucket: opts.OutputBucket,
	}, nil
}

func (b *S3Backend) bucketFor(folder Folder) string {
	if folder == FolderUploads {
		return b.uploadBucket
	}
	return b.outputBucket
}

func (b *S3Backend) Save(ctx context.Context, data []byte, logicalName string, folder Folder) (string, error) {
	bucket := b.bucketFor(folder)
	key := string(folder) + "/" + uuid.New().String() + "/" + logicalName

	uploader := manager.NewUploader(b.client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return "", geoerr.Wrap(err, geoerr.UpstreamError, "storage: uploading s3://%s/%s", bucket, key)
	}
	return "s3://" + bucket + "/" + key, nil
}

func splitS3Path(storagePath string) (bucket, key string, ok bool) {
	trimmed := strings.TrimPrefix(storagePath, "s3://")
	if trimmed == storagePath {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (b *S3Backend) URL(ctx context.Context, storagePath string, ttl time.Duration) (string, error) {
	bucket, key, ok := splitS3Path(storagePath)
	if !ok {
		return "", geoerr.New(geoerr.InvalidInput, "storage: %q is not an s3 path for this backend", storagePath)
	}
	req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", geoerr.Wrap(err, geoerr.UpstreamError, "storage: presigning %s", storagePath)
	}
	return req.URL, nil
}

func (b *S3Backend) Delete(ctx context.Context, storagePath string) error {
	bucket, key, ok := splitS3Path(storagePath)
	if !ok {
		return geoerr.New(geoerr.InvalidInput, "storage: %q is not an s3 path for this backend", storagePath)
	}
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return geoerr.Wrap(err, geoerr.UpstreamError, "storage: deleting %s", storagePath)
	}
	return nil
}

func (b *S3Backend) Read(ctx context.Context, storagePath string) ([]byte, error) {
	bucket, key, ok := splitS3Path(storagePath)
	if !ok {
		return nil, geoerr.New(geoerr.InvalidInput, "storage: %q is not an s3 path for this backend", storagePath)
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.UpstreamError, "storage: reading %s", storagePath)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, geoerr.Wrap(err, geoerr.UpstreamError, "storage: draining body of %s", storagePath)
	}
	return data, nil
}
