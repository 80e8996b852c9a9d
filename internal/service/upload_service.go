package service

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/iliyamo/collectible-requests/internal/access"
	"github.com/iliyamo/collectible-requests/internal/model"
	"github.com/iliyamo/collectible-requests/internal/repository"
	"github.com/iliyamo/collectible-requests/internal/storage"
)

// MaxImageBytes bounds a single uploaded image.
const MaxImageBytes = 20 << 20

// Uploader stores one object and returns its public URL, and removes
// objects by that URL.  It is satisfied by *storage.ObjectStore.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (string, error)
	RemoveByURL(ctx context.Context, url string) error
}

// ImageFile is one file of a multipart upload.
type ImageFile struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadService validates images and stores them in their buckets.
type UploadService struct {
	store          Uploader
	gate           *access.Gate
	requestBucket  string
	showcaseBucket string
	now            func() time.Time
}

func NewUploadService(store Uploader, gate *access.Gate, requestBucket, showcaseBucket string) *UploadService {
	return &UploadService{
		store:          store,
		gate:           gate,
		requestBucket:  requestBucket,
		showcaseBucket: showcaseBucket,
		now:            time.Now,
	}
}

// RequestImages stores 1 to 4 reference images under the actor's prefix.
// Every file is validated before anything is uploaded.
func (s *UploadService) RequestImages(ctx context.Context, actor access.Identity, files []ImageFile) ([]string, error) {
	if len(files) == 0 {
		return nil, invalid("no files")
	}
	if len(files) > model.MaxReferenceImages {
		return nil, invalid("at most %d images", model.MaxReferenceImages)
	}
	for _, f := range files {
		if err := checkImage(f); err != nil {
			return nil, err
		}
	}
	urls := make([]string, 0, len(files))
	for _, f := range files {
		key := storage.RequestImageKey(actor.UserID, f.Filename, s.now())
		u, err := s.store.Upload(ctx, s.requestBucket, key, f.Body, f.Size, f.ContentType)
		if err != nil {
			s.discard(urls)
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// discard removes the part of a batch stored before a failure.  It runs
// on its own context since the request's may be what failed.
func (s *UploadService) discard(urls []string) {
	if len(urls) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, u := range urls {
		if err := s.store.RemoveByURL(ctx, u); err != nil {
			log.Printf("upload: orphaned %s: %v", u, err)
		}
	}
}

// ShowcaseImage stores one catalog photo.  Admin only.
func (s *UploadService) ShowcaseImage(ctx context.Context, actor access.Identity, f ImageFile) (string, error) {
	if !s.gate.IsAdmin(actor) {
		return "", repository.ErrForbidden
	}
	if err := checkImage(f); err != nil {
		return "", err
	}
	key := storage.ShowcaseImageKey(f.Filename, s.now())
	return s.store.Upload(ctx, s.showcaseBucket, key, f.Body, f.Size, f.ContentType)
}

func checkImage(f ImageFile) error {
	if !strings.HasPrefix(strings.ToLower(f.ContentType), "image/") {
		return invalid("%s is not an image", f.Filename)
	}
	if f.Size <= 0 || f.Size > MaxImageBytes {
		return invalid("%s must be between 1 byte and 20 MiB", f.Filename)
	}
	return nil
}
