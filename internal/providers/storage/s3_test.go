package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/charitydesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		raw, _ := io.ReadAll(params.Body)
		f.body = string(raw)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestPutUploadsAndReturnsURL(t *testing.T) {
	client := &fakeS3{}
	store := NewS3(client, "receipts-bucket", "eu-west-1", "")

	url, err := store.Put(context.Background(), "/receipts/a.pdf", strings.NewReader("pdf"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "https://receipts-bucket.s3.eu-west-1.amazonaws.com/receipts/a.pdf", url)
	assert.Equal(t, "receipts-bucket", aws.ToString(client.input.Bucket))
	assert.Equal(t, "receipts/a.pdf", aws.ToString(client.input.Key))
	assert.Equal(t, "application/pdf", aws.ToString(client.input.ContentType))
	assert.Equal(t, "pdf", client.body)
}

func TestPutUsesPublicURL(t *testing.T) {
	store := NewS3(&fakeS3{}, "b", "us-east-1", "https://cdn.example.org/")

	url, err := store.Put(context.Background(), "receipts/a.pdf", strings.NewReader(""), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/receipts/a.pdf", url)
}

func TestPutErrors(t *testing.T) {
	store := NewS3(&fakeS3{err: errors.New("denied")}, "b", "us-east-1", "")

	_, err := store.Put(context.Background(), "k.pdf", strings.NewReader(""), "application/pdf")
	assert.ErrorContains(t, err, "denied")

	_, err = store.Put(context.Background(), "  ", strings.NewReader(""), "application/pdf")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestReceiptKey(t *testing.T) {
	paid := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "receipts/city-food-bank/2024/03/rcpt-42.pdf", ReceiptKey("City Food Bank", "RCPT-42", paid))
	assert.Equal(t, "receipts/receipts/2024/03/rcpt-42.pdf", ReceiptKey("", "RCPT-42", paid))
}

func TestNewFromConfigWithoutBucket(t *testing.T) {
	store, err := NewFromConfig(config.Config{}, zap.NewNop())
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "k", strings.NewReader(""), "application/pdf")
	require.NoError(t, err)
	assert.Empty(t, url)
}
