package notes

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"clientflow/api/internal/apperr"
)

// MinioStore keeps each notes document as one markdown object.
type MinioStore struct {
	client *minio.Client
	bucket string
}

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, apperr.External("notes", 0, "check bucket", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, apperr.External("notes", 0, "create bucket", err)
		}
	}
	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

func objectName(docID string) string {
	name := strings.Trim(strings.TrimSpace(docID), "/")
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	return "notes/" + name
}

func (s *MinioStore) Read(ctx context.Context, docID string) (string, error) {
	object, err := s.client.GetObject(ctx, s.bucket, objectName(docID), minio.GetObjectOptions{})
	if err != nil {
		return "", apperr.External("notes", 0, "get object", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", nil
		}
		return "", apperr.External("notes", 0, "read object", err)
	}
	return string(data), nil
}

func (s *MinioStore) Write(ctx context.Context, docID, content string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName(docID), strings.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "text/markdown; charset=utf-8",
	})
	if err != nil {
		return apperr.External("notes", 0, "put object", err)
	}
	return nil
}
