package aws

import (
	"context"
	"fmt"
	"strings"
)

// Client defines the AWS operations used to publish selections.
type Client interface {
	VerifyCredentials(ctx context.Context) (*CallerIdentity, error)
	CheckBucketAccess(ctx context.Context, bucket string) (bool, error)
	UploadToS3(ctx context.Context, bucket, key, contentType string, data []byte) error
}

// CallerIdentity holds AWS STS caller identity information.
type CallerIdentity struct {
	Account string
	ARN     string
	UserID  string
}

// IsS3URI reports whether dest names an S3 object rather than a local file.
func IsS3URI(dest string) bool {
	return strings.HasPrefix(dest, "s3://")
}

// ParseS3URI splits "s3://bucket/key" into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 uri must name a bucket and an object key: %q", uri)
	}
	return bucket, key, nil
}

// OutputAccess describes whether selections can be published to a bucket.
type OutputAccess struct {
	Identity *CallerIdentity
	Bucket   string
	Writable bool
	Message  string
}

// CheckOutputAccess verifies the caller's credentials and that the bucket
// of uri is reachable.
func CheckOutputAccess(ctx context.Context, client Client, uri string) (*OutputAccess, error) {
	bucket, _, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	identity, err := client.VerifyCredentials(ctx)
	if err != nil {
		return nil, err
	}

	ok, err := client.CheckBucketAccess(ctx, bucket)
	if err != nil {
		return nil, err
	}

	access := &OutputAccess{Identity: identity, Bucket: bucket, Writable: ok}
	if ok {
		access.Message = fmt.Sprintf("Bucket %s is accessible as %s.", bucket, identity.ARN)
	} else {
		access.Message = fmt.Sprintf("Bucket %s is not accessible as %s. Check IAM permissions.", bucket, identity.ARN)
	}
	return access, nil
}
