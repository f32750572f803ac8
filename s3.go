package apihub

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// PresignPutAPI is implemented by *s3.PresignClient.
type PresignPutAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type UploadURLParams struct {
	Bucket      string
	Key         string
	ContentType string
	// ExpiresIn defaults to one hour.
	ExpiresIn time.Duration
	// ACL defaults to private.
	ACL types.ObjectCannedACL
}

// GenerateUploadURL presigns a PUT of a single object.
func GenerateUploadURL(ctx context.Context, client PresignPutAPI, params UploadURLParams) (string, error) {
	expires := params.ExpiresIn
	if expires <= 0 {
		expires = time.Hour
	}
	acl := params.ACL
	if acl == "" {
		acl = types.ObjectCannedACLPrivate
	}

	req, err := client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(params.Bucket),
		Key:         aws.String(params.Key),
		ContentType: aws.String(params.ContentType),
		ACL:         acl,
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload of %s/%s: %w", params.Bucket, params.Key, err)
	}
	return req.URL, nil
}
