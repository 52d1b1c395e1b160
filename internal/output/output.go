// Package output stores batch results as parquet files on disk or in S3,
// laid out by date.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/parquet-go/parquet-go"
)

// Batch is one named set of records for a date, e.g. the node prices of a
// curve fit.
type Batch[T any] struct {
	Name    string
	Date    time.Time
	Records []T
}

func WriteParquet[T any](records []T, w io.Writer) error {
	writer := parquet.NewGenericWriter[T](w)

	if _, err := writer.Write(records); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write records: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet reads every record of a parquet file.
func ReadParquet[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

func datePath(date time.Time, sep string) string {
	d := date.UTC()
	return fmt.Sprintf("%04d%s%02d%s%02d", d.Year(), sep, d.Month(), sep, d.Day())
}

// StoreToPath writes <basepath>/YYYY/MM/DD/<name>.parquet.
func StoreToPath[T any](ctx context.Context, batch Batch[T], basepath string) (string, error) {
	dir := filepath.Join(basepath, datePath(batch.Date, string(filepath.Separator)))

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}

	outPath := filepath.Join(dir, batch.Name+".parquet")

	file, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := WriteParquet(batch.Records, file); err != nil {
		return "", err
	}

	return outPath, nil
}

type S3Path struct {
	Bucket string
	Prefix string
}

func (p *S3Path) String() string {
	if p.Prefix == "" {
		return "s3://" + p.Bucket
	}
	return "s3://" + p.Bucket + "/" + p.Prefix
}

// ParseS3 splits s3://bucket/prefix. Paths without the scheme are an error.
func ParseS3(path string) (*S3Path, error) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return nil, fmt.Errorf("path must start with s3://")
	}

	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("missing bucket in %q", path)
	}

	return &S3Path{
		Bucket: bucket,
		Prefix: strings.TrimSuffix(prefix, "/"),
	}, nil
}

// PutObjectAPI is the part of the S3 client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// StoreToS3 uploads to <prefix>/YYYY/MM/DD/<name>.parquet in the bucket.
func StoreToS3[T any](ctx context.Context, batch Batch[T], client PutObjectAPI, dst *S3Path) (string, error) {
	tmp, err := os.CreateTemp("", batch.Name+"-*.parquet")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tmp.Close()
	defer os.Remove(tmp.Name())

	if err := WriteParquet(batch.Records, tmp); err != nil {
		return "", err
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to seek to start of file: %w", err)
	}

	key := datePath(batch.Date, "/") + "/" + batch.Name + ".parquet"
	if dst.Prefix != "" {
		key = dst.Prefix + "/" + key
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(dst.Bucket),
		Key:    aws.String(key),
		Body:   tmp,
	}

	if _, err := client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload file to s3://%s/%s: %w", dst.Bucket, key, err)
	}

	return fmt.Sprintf("s3://%s/%s", dst.Bucket, key), nil
}

// NewS3Client loads the shared AWS config for profile. "default" or an
// empty profile uses the default chain.
func NewS3Client(ctx context.Context, profile string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" && profile != "default" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Store writes the batch to dst, which is either a directory or an
// s3://bucket/prefix location.
func Store[T any](ctx context.Context, batch Batch[T], dst, profile string) (string, error) {
	if s3Path, err := ParseS3(dst); err == nil {
		client, err := NewS3Client(ctx, profile)
		if err != nil {
			return "", err
		}
		return StoreToS3(ctx, batch, client, s3Path)
	}
	return StoreToPath(ctx, batch, dst)
}
