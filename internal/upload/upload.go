// Package upload accepts user images. The type is decided from the file's
// leading bytes only; the declared Content-Type and extension are ignored.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"blogpilot/internal/domain"
	"blogpilot/internal/storage"
)

const (
	MaxSize  = 10 << 20
	sniffLen = 512
)

var (
	ErrUnsupportedType = fmt.Errorf("%w: unsupported file type", domain.ErrInvalidInput)
	ErrTooLarge        = fmt.Errorf("%w: file exceeds 10 MiB", domain.ErrInvalidInput)
	ErrEmpty           = fmt.Errorf("%w: file is empty", domain.ErrInvalidInput)
)

var allowed = []struct {
	mime string
	ext  string
}{
	{"image/png", ".png"},
	{"image/jpeg", ".jpg"},
	{"image/gif", ".gif"},
	{"image/webp", ".webp"},
}

// Detect inspects the first bytes of a file and returns its MIME type and
// canonical extension when it is an accepted image.
func Detect(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", ErrEmpty
	}
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	mt := mimetype.Detect(head)
	for _, a := range allowed {
		if mt.Is(a.mime) {
			return a.mime, a.ext, nil
		}
	}
	return "", "", fmt.Errorf("%w: detected %s", ErrUnsupportedType, mt.String())
}

// Result describes a stored upload.
type Result struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

type Service struct {
	store  storage.ObjectStore
	logger zerolog.Logger
}

func NewService(store storage.ObjectStore, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Upload validates r and stores it under uploads/<userID>/<uuid><ext>.
func (s *Service) Upload(ctx context.Context, userID string, r io.Reader) (*Result, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if n > MaxSize {
		return nil, ErrTooLarge
	}
	data := buf.Bytes()
	contentType, ext, err := Detect(data)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("uploads/%s/%s%s", userID, uuid.NewString(), ext)
	start := time.Now()
	url, err := s.store.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	s.logger.Info().
		Str("user_id", userID).
		Str("key", key).
		Int("size", len(data)).
		Dur("took", time.Since(start)).
		Msg("upload stored")
	return &Result{URL: url, Key: key, ContentType: contentType, Size: len(data)}, nil
}
