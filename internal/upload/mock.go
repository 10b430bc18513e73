package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MockAPI is an in-memory PutObjectAPI implementation for tests, modeled
// on the pack's mock S3 client: store every put in a map rather than
// exercising real network calls.
type MockAPI struct {
	Objects map[string][]byte
	FailKey string // if set, PutObject to this key returns an error
}

// NewMockAPI returns an empty mock store.
func NewMockAPI() *MockAPI {
	return &MockAPI{Objects: make(map[string][]byte)}
}

func (m *MockAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(params.Key)
	if m.FailKey != "" && key == m.FailKey {
		return nil, fmt.Errorf("mock: simulated failure for key %s", key)
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.Objects[key] = data
	return &s3.PutObjectOutput{ETag: aws.String(fmt.Sprintf("%x", len(data)))}, nil
}
