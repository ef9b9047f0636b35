package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/feed"
)

// S3Config holds configuration for S3-compatible storage
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for MinIO, R2, DO Spaces
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectPutter is the part of the S3 client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive keeps a copy of every raw feed page so a run can be replayed.
type S3Archive struct {
	client ObjectPutter
	cfg    S3Config
}

func NewS3Archive(ctx context.Context, cfg S3Config) (*S3Archive, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
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

	archive := NewS3ArchiveWithClient(client, cfg.Bucket)
	archive.cfg = cfg
	return archive, nil
}

func NewS3ArchiveWithClient(client ObjectPutter, bucket string) *S3Archive {
	return &S3Archive{client: client, cfg: S3Config{Bucket: bucket}}
}

// URL is where an archived key can be read back from.
func (a *S3Archive) URL(key string) string {
	return ObjectURL(a.cfg, key)
}

// PageKey is raw/<resource>/<runID>/<offset>.json.
func PageKey(resource feed.Resource, runID string, offset int) string {
	return fmt.Sprintf("raw/%s/%s/%06d.json", strings.ToLower(string(resource)), runID, offset)
}

// ArchivePage writes the page's records as one JSON array.
func (a *S3Archive) ArchivePage(ctx context.Context, runID string, page *feed.RawPage) error {
	records := page.Records
	if records == nil {
		records = []json.RawMessage{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}

	key := PageKey(page.Resource, runID, page.Offset)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// ObjectURL returns the public URL for an archived key. Custom endpoints
// are addressed path-style, matching how the client is built.
func ObjectURL(cfg S3Config, key string) string {
	if cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(cfg.Endpoint, "/"), cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, cfg.Region, key)
}
