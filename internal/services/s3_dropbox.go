package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"resetd/internal/models"
)

type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Dropbox writes each reset notice as a JSON object into a bucket that an
// outbound mail worker drains.
type S3Dropbox struct {
	uploader objectUploader
	bucket   string
	prefix   string
}

func NewS3Dropbox(client *s3.Client, bucket, prefix string) *S3Dropbox {
	return newS3Dropbox(manager.NewUploader(client), bucket, prefix)
}

func newS3Dropbox(uploader objectUploader, bucket, prefix string) *S3Dropbox {
	if prefix == "" {
		prefix = "password-resets"
	}
	return &S3Dropbox{uploader: uploader, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (d *S3Dropbox) objectKey(notice models.ResetNotice) string {
	day := notice.ExpiresAt.UTC().Format("2006/01/02")
	return path.Join(d.prefix, day, uuid.NewString()+".json")
}

func (d *S3Dropbox) Notify(ctx context.Context, notice models.ResetNotice) error {
	body, err := json.Marshal(newPasswordResetMessage(notice))
	if err != nil {
		return fmt.Errorf("marshal reset message: %w", err)
	}

	_, err = d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.objectKey(notice)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload reset message: %w", err)
	}
	return nil
}
