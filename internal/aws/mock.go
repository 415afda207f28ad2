package aws

import "context"

// MockClient is a test double for the Client interface.
type MockClient struct {
	Identity     *CallerIdentity
	IdentityErr  error
	BucketAccess bool
	BucketErr    error
	UploadErr    error

	// Track calls
	UploadedObjects map[string][]byte // bucket/key → data
	ContentTypes    map[string]string // bucket/key → content type
}

// NewMockClient creates a new MockClient with default values.
func NewMockClient() *MockClient {
	return &MockClient{
		Identity: &CallerIdentity{
			Account: "123456789012",
			ARN:     "arn:aws:iam::123456789012:user/test",
			UserID:  "AIDA12345",
		},
		BucketAccess:    true,
		UploadedObjects: make(map[string][]byte),
		ContentTypes:    make(map[string]string),
	}
}

func (m *MockClient) VerifyCredentials(_ context.Context) (*CallerIdentity, error) {
	return m.Identity, m.IdentityErr
}

func (m *MockClient) CheckBucketAccess(_ context.Context, _ string) (bool, error) {
	return m.BucketAccess, m.BucketErr
}

func (m *MockClient) UploadToS3(_ context.Context, bucket, key, contentType string, data []byte) error {
	if m.UploadErr != nil {
		return m.UploadErr
	}
	fullKey := bucket + "/" + key
	m.UploadedObjects[fullKey] = data
	m.ContentTypes[fullKey] = contentType
	return nil
}
