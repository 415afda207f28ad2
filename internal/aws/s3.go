package aws

import (
	"context"
	"fmt"
)

// SelectionUploader publishes selection documents to S3.
type SelectionUploader struct {
	client Client
}

// NewSelectionUploader creates a new selection uploader.
func NewSelectionUploader(client Client) *SelectionUploader {
	return &SelectionUploader{client: client}
}

// Upload writes data to the object named by uri and returns the uri.
func (u *SelectionUploader) Upload(ctx context.Context, uri string, data []byte) (string, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return "", err
	}
	if err := u.client.UploadToS3(ctx, bucket, key, "application/yaml", data); err != nil {
		return "", fmt.Errorf("uploading selection: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}
