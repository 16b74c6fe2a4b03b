// Package uploads stores file answers in object storage and hands back the
// public URL that becomes the response's fileUrl.
package uploads

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fieldbook/api/internal/util"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

type Service struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func New(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
	}

	return &Service{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Store uploads one file answer under checklists/<publicID>/ and returns its
// public URL. Object names carry a random id so re-uploads never clobber the
// previous attempt.
func (s *Service) Store(ctx context.Context, checklistPublicID, filename, contentType string, size int64, body io.Reader) (string, error) {
	ext := path.Ext(filename)
	object := fmt.Sprintf("checklists/%s/%s%s", checklistPublicID, util.NewID("file"), ext)

	_, err := s.client.PutObject(ctx, s.bucket, object, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return s.publicURL + "/" + object, nil
}

func (s *Service) Remove(ctx context.Context, objectURL string) error {
	object := strings.TrimPrefix(objectURL, s.publicURL+"/")
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
