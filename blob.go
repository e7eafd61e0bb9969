package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// BlobStore is the blob capability the pipelines consume: raw bytes keyed
// by sanitized filename, plus time-limited direct download links. Get
// returns ErrNotFound (wrapped) when the object does not exist.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	SignGetURL(key string, ttl time.Duration) (string, error)
	ObjectURL(key string) string
}

// GCSBlobStore stores blobs as objects in a single GCS bucket.
type GCSBlobStore struct {
	client *storage.Client
	bucket string

	// Signing credentials for V4 signed GET URLs; when empty, SignGetURL
	// reports that links are not configured.
	signerEmail string
	signerKey   string
}

// NewGCSBlobStore wraps an existing storage client for the given bucket.
func NewGCSBlobStore(client *storage.Client, cfg Config) *GCSBlobStore {
	return &GCSBlobStore{
		client:      client,
		bucket:      cfg.ImagingBucket,
		signerEmail: cfg.SignedURLServiceAccountEmail,
		signerKey:   cfg.SignedURLPrivateKey,
	}
}

// Put writes the bytes under the given object key, overwriting any
// existing object with that name.
func (s *GCSBlobStore) Put(ctx context.Context, key string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer %s: %w", key, err)
	}
	return nil
}

// Get reads the whole object into memory. DICOM blobs are single-frame
// files, small enough that streaming is not worth the complexity here.
func (s *GCSBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the object. A missing object maps to ErrNotFound.
func (s *GCSBlobStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("object %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// SignGetURL returns a V4 signed URL granting a time-limited GET on the
// object, for downloads that bypass the retrieval pipeline.
func (s *GCSBlobStore) SignGetURL(key string, ttl time.Duration) (string, error) {
	if s.signerEmail == "" || s.signerKey == "" {
		return "", fmt.Errorf("signed URL credentials not configured")
	}

	signedURL, err := storage.SignedURL(
		s.bucket,
		key,
		&storage.SignedURLOptions{
			Scheme:         storage.SigningSchemeV4,
			Method:         "GET",
			Expires:        time.Now().Add(ttl),
			GoogleAccessID: s.signerEmail,
			PrivateKey:     []byte(s.signerKey),
		},
	)
	if err != nil {
		return "", fmt.Errorf("sign GET URL for %s: %w", key, err)
	}
	return signedURL, nil
}

// ObjectURL is the stable retrieval URL stored on the file record.
func (s *GCSBlobStore) ObjectURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}
