// Package storage persists email attachments to an S3-compatible object
// store.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/domain"
)

// MinioStore saves attachments under <bucket>/<messageID>/<filename>.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinioStore connects to the configured object store. Returns nil when
// no endpoint is configured; callers treat a nil store as "attachments not
// persisted".
func NewMinioStore(cfg config.StorageConfig, logger *zap.Logger) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		logger.Warn("MINIO_ENDPOINT not provided; attachments will not be persisted")
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio init: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Save uploads each attachment and returns the stored references.
func (s *MinioStore) Save(ctx context.Context, messageID string, attachments []domain.RawAttachment) ([]domain.EmailAttachment, error) {
	if s == nil {
		refs := make([]domain.EmailAttachment, 0, len(attachments))
		for _, att := range attachments {
			refs = append(refs, domain.EmailAttachment{
				FileName:    safeName(att.FileName),
				ContentType: att.ContentType,
				SizeBytes:   int64(len(att.Content)),
			})
		}
		return refs, nil
	}

	refs := make([]domain.EmailAttachment, 0, len(attachments))
	for _, att := range attachments {
		name := safeName(att.FileName)
		if name == "" {
			continue
		}
		key := messageID + "/" + name
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		_, err := s.client.PutObject(ctx, s.bucket, key,
			bytes.NewReader(att.Content), int64(len(att.Content)),
			minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			return nil, fmt.Errorf("store attachment %s: %w", name, err)
		}
		refs = append(refs, domain.EmailAttachment{
			FileName:    name,
			ContentType: contentType,
			SizeBytes:   int64(len(att.Content)),
			StoragePath: key,
		})
	}
	return refs, nil
}

// safeName strips path components so a crafted filename cannot escape the
// message prefix.
func safeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := strings.TrimSpace(path.Base(name))
	if base == "." || base == ".." || strings.HasPrefix(base, ".") || base == "/" {
		return ""
	}
	return base
}
