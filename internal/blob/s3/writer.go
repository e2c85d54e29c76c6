package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// minPartSize is the minimum allowed part size for S3 multipart uploads (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// ndjson is the content type of every archive object.
const ndjson = "application/x-ndjson"

// Writer implements domain.BlobWriter for archive uploads.
type Writer struct {
	client *s3.Client
	bucket string
	sse    types.ServerSideEncryption
}

// NewWriter uploads to the client's configured bucket, applying its
// server-side encryption setting.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
		sse:    c.sse,
	}
}

var _ domain.BlobWriter = (*Writer)(nil)

func (w *Writer) input(path string, data io.Reader, contentType string, meta map[string]string) *s3.PutObjectInput {
	if contentType == "" {
		contentType = ndjson
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
		Metadata:    meta,
	}
	if w.sse != "" {
		in.ServerSideEncryption = w.sse
	}
	return in
}

// Put uploads data with a single PutObject request.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string, meta map[string]string) error {
	if _, err := w.client.PutObject(ctx, w.input(path, data, contentType, meta)); err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}

// PutMultipart uploads NDJSON in concurrent parts of partSize bytes. Sizes
// below the 5 MiB S3 minimum are raised to it.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64, meta map[string]string) error {
	if partSize < minPartSize {
		partSize = minPartSize
	}

	uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	if _, err := uploader.Upload(ctx, w.input(path, data, ndjson, meta)); err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}
