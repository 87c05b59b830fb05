package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/charitydesk/internal/config"
	receiptdomain "github.com/smallbiznis/charitydesk/internal/receipt/domain"
	"go.uber.org/zap"
)

var ErrEmptyKey = errors.New("storage_empty_key")

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage uploads receipts to a single bucket.
type S3Storage struct {
	client    putObjectAPI
	bucket    string
	region    string
	publicURL string
}

func NewS3(client putObjectAPI, bucket, region, publicURL string) *S3Storage {
	return &S3Storage{
		client:    client,
		bucket:    bucket,
		region:    region,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

func (s *S3Storage) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrEmptyKey
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.objectURL(key), nil
}

func (s *S3Storage) objectURL(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// NoOpStorage is used when no bucket is configured. It stores nothing and returns no URL.
type NoOpStorage struct{}

func (NoOpStorage) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	return "", nil
}

// ReceiptKey builds the object key for a receipt, grouped by organization and month.
func ReceiptKey(organization, number string, paidAt time.Time) string {
	org := slug.Make(organization)
	if org == "" {
		org = "receipts"
	}
	return path.Join("receipts", org, paidAt.UTC().Format("2006/01"), slug.Make(number)+".pdf")
}

func NewFromConfig(cfg config.Config, log *zap.Logger) (receiptdomain.Storage, error) {
	rc := cfg.Receipt
	if rc.Bucket == "" {
		log.Named("providers.storage").Info("RECEIPT_S3_BUCKET not set, receipts are emailed without a stored copy")
		return NoOpStorage{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(rc.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3(s3.NewFromConfig(awsCfg), rc.Bucket, rc.Region, rc.PublicURL), nil
}
