// Package upload puts a compressed image's bytes into object storage and
// hands back the storage key the Analysis Client references.
package upload

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the slice of the S3 client this package actually calls,
// small enough to fake in tests without dragging in the full SDK client.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client uploads image bytes to a single configured bucket.
type Client struct {
	api    PutObjectAPI
	bucket string
}

// NewClient builds a Client around an explicit PutObjectAPI implementation
// (typically *s3.Client, or a fake in tests).
func NewClient(api PutObjectAPI, bucket string) *Client {
	return &Client{api: api, bucket: bucket}
}

// NewDefaultClient loads AWS configuration from the environment/shared
// config files and returns a Client backed by a real S3 client.
func NewDefaultClient(ctx context.Context, bucket string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("upload: loading AWS config: %w", err)
	}
	return NewClient(s3.NewFromConfig(cfg), bucket), nil
}

// mimeExtensions maps a MIME type to the file extension storage keys use.
var mimeExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

const randomSuffixLength = 13
const randomAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// StorageKey generates a collision-resistant key in the pipeline's
// `${epochMs}_${rand36(13)}.${ext}` format.
func StorageKey(epochMs int64, mimeType string) (string, error) {
	suffix, err := randomSuffix(randomSuffixLength)
	if err != nil {
		return "", fmt.Errorf("upload: generating storage key: %w", err)
	}
	ext := mimeExtensions[mimeType]
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%d_%s.%s", epochMs, suffix, ext), nil
}

func randomSuffix(length int) (string, error) {
	var b strings.Builder
	alphabetLen := big.NewInt(int64(len(randomAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		b.WriteByte(randomAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Put uploads data under key with the given content type, returning the
// same key on success for convenience chaining.
func (c *Client) Put(ctx context.Context, key string, data []byte, mimeType string) (string, error) {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("upload: putting object %s: %w", key, err)
	}
	return key, nil
}
