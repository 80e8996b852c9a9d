// Package storage stores uploaded images in an S3-compatible bucket
// (MinIO in development) and maps objects to their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/iliyamo/collectible-requests/internal/config"
)

// ErrForeignURL is returned when a URL does not point into a known bucket.
var ErrForeignURL = errors.New("url is not a stored object")

// ObjectStore wraps a minio client with the buckets this service owns.
type ObjectStore struct {
	client  *minio.Client
	baseURL string
	region  string
	buckets []string
}

// New connects to the configured endpoint.  No request is made until
// EnsureBuckets or the first upload.
func New(cfg config.StorageConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &ObjectStore{
		client:  client,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		region:  cfg.Region,
		buckets: []string{cfg.RequestBucket, cfg.ShowcaseBucket},
	}, nil
}

// publicRead lets anonymous clients GET objects, which is how image URLs
// are rendered in the browser.
const publicRead = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

// EnsureBuckets creates missing buckets and makes them publicly readable.
func (s *ObjectStore) EnsureBuckets(ctx context.Context) error {
	for _, b := range s.buckets {
		ok, err := s.client.BucketExists(ctx, b)
		if err != nil {
			return fmt.Errorf("bucket %s: %w", b, err)
		}
		if ok {
			continue
		}
		if err := s.client.MakeBucket(ctx, b, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", b, err)
		}
		if err := s.client.SetBucketPolicy(ctx, b, fmt.Sprintf(publicRead, b)); err != nil {
			return fmt.Errorf("bucket policy %s: %w", b, err)
		}
		log.Printf("storage: created bucket %s", b)
	}
	return nil
}

// Upload stores r under bucket/key and returns its public URL.
func (s *ObjectStore) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (string, error) {
	if _, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=3600",
	}); err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return s.PublicURL(bucket, key), nil
}

// PublicURL is the browser-facing URL of bucket/key.
func (s *ObjectStore) PublicURL(bucket, key string) string {
	return PublicURL(s.baseURL, bucket, key)
}

// Remove deletes bucket/key.  Removing a missing object is not an error.
func (s *ObjectStore) Remove(ctx context.Context, bucket, key string) error {
	return s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

// RemoveByURL deletes the object a public URL points at.
func (s *ObjectStore) RemoveByURL(ctx context.Context, rawURL string) error {
	bucket, key, err := KeyFromURL(s.baseURL, rawURL)
	if err != nil {
		return err
	}
	return s.Remove(ctx, bucket, key)
}

// PublicURL joins base, bucket and key.
func PublicURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + key
}

// KeyFromURL is the inverse of PublicURL.
func KeyFromURL(base, rawURL string) (bucket, key string, err error) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", "", ErrForeignURL
	}
	rest := strings.TrimPrefix(rawURL, prefix)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", ErrForeignURL
	}
	return bucket, key, nil
}

// RequestImageKey names a reference image uploaded by userID:
// "<user>/<unix ms>-<uuid><ext>".
func RequestImageKey(userID uint64, filename string, now time.Time) string {
	return strconv.FormatUint(userID, 10) + "/" + ShowcaseImageKey(filename, now)
}

// ShowcaseImageKey names a showcase photo: "<unix ms>-<uuid><ext>".
func ShowcaseImageKey(filename string, now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString() + Ext(filename)
}

// Ext returns the lower-cased extension of filename, or "" when it has
// none or an unusable one.
func Ext(filename string) string {
	ext := strings.ToLower(filepath.Ext(path.Base(filepath.ToSlash(filename))))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
