// Package minio stores uploaded contract documents in object storage.
package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dealdeskhq/dealdesk/internal/config"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// keyPrefix namespaces document objects inside the bucket.
const keyPrefix = "contracts"

// allowedContentTypes are the document types accepted for upload.
var allowedContentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// minioAPI is the subset of the minio client the store uses.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// DocumentStore uploads, fetches, and presigns contract documents.
type DocumentStore struct {
	client        minioAPI
	bucket        string
	presignExpiry time.Duration
	logger        logging.Logger
}

// NewDocumentStore connects to MinIO and ensures the bucket exists.
func NewDocumentStore(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*DocumentStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create minio client")
	}

	store := &DocumentStore{
		client:        client,
		bucket:        cfg.Bucket,
		presignExpiry: cfg.PresignExpiry,
		logger:        log,
	}
	if store.presignExpiry == 0 {
		store.presignExpiry = time.Hour
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create bucket")
		}
	}

	log.Info("connected to MinIO",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
	)
	return store, nil
}

// NewDocumentStoreWithClient wraps an existing client (for testing).
func NewDocumentStoreWithClient(client minioAPI, bucket string, log logging.Logger) *DocumentStore {
	return &DocumentStore{
		client:        client,
		bucket:        bucket,
		presignExpiry: time.Hour,
		logger:        log,
	}
}

// Upload stores a document under a key derived from the owner and a fresh
// id, returning the key for persistence on the contract record.
func (s *DocumentStore) Upload(ctx context.Context, ownerID common.UserID, filename, contentType string, r io.Reader, size int64) (string, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return "", errors.New(errors.ErrCodeDocumentTypeInvalid, "unsupported document type").WithDetail(contentType)
	}

	key := fmt.Sprintf("%s/%s/%s%s", keyPrefix, ownerID, common.NewID(), ext)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"original-filename": sanitizeFilename(filename),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload document")
	}

	s.logger.Debug("uploaded document", logging.String("key", key), logging.Int64("size", size))
	return key, nil
}

// Get opens the stored object for reading.
func (s *DocumentStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to get document")
	}
	return obj, nil
}

// PresignedURL returns a time-limited download URL, used both by the UI and
// as the document reference handed to the extraction service.
func (s *DocumentStore) PresignedURL(ctx context.Context, key string) (string, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", errors.New(errors.ErrCodeDocumentNotFound, "document not found").WithDetail(key)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignExpiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to presign document URL")
	}
	return u.String(), nil
}

// OwnedBy reports whether the key sits under the owner's namespace. Keys
// carry the uploading user in their second segment, so this is a pure
// string check with no storage round trip.
func (s *DocumentStore) OwnedBy(key string, ownerID common.UserID) bool {
	return strings.HasPrefix(key, keyPrefix+"/"+string(ownerID)+"/")
}

// Delete removes the stored object. Missing objects are not an error.
func (s *DocumentStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to delete document")
	}
	return nil
}

func sanitizeFilename(name string) string {
	name = path.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
