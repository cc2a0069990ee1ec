package upload

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogpilot/internal/domain"
)

var (
	pngHeader  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	gifHeader  = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00")
	webpHeader = []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantMIME string
		wantExt  string
		wantErr  error
	}{
		{name: "png", data: pngHeader, wantMIME: "image/png", wantExt: ".png"},
		{name: "jpeg", data: jpegHeader, wantMIME: "image/jpeg", wantExt: ".jpg"},
		{name: "gif", data: gifHeader, wantMIME: "image/gif", wantExt: ".gif"},
		{name: "webp", data: webpHeader, wantMIME: "image/webp", wantExt: ".webp"},
		{name: "html disguised", data: []byte("<html><script>alert(1)</script></html>"), wantErr: ErrUnsupportedType},
		{name: "pdf", data: []byte("%PDF-1.7\n"), wantErr: ErrUnsupportedType},
		{name: "empty", data: nil, wantErr: ErrEmpty},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mime, ext, err := Detect(tc.data)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantMIME, mime)
			assert.Equal(t, tc.wantExt, ext)
		})
	}
}

type memStore struct {
	key         string
	contentType string
	data        []byte
	err         error
}

func (m *memStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.key, m.data, m.contentType = key, data, contentType
	return "https://cdn.example.com/" + key, nil
}

func TestUploadStoresByDetectedType(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, zerolog.Nop())
	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 1024)...)

	res, err := svc.Upload(context.Background(), "u1", bytes.NewReader(body))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, "uploads/u1/"))
	assert.True(t, strings.HasSuffix(res.Key, ".png"))
	assert.Equal(t, "image/png", store.contentType)
	assert.Equal(t, len(body), res.Size)
	assert.Equal(t, "https://cdn.example.com/"+res.Key, res.URL)
}

func TestUploadRejectsOversize(t *testing.T) {
	svc := NewService(&memStore{}, zerolog.Nop())
	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, MaxSize)...)
	_, err := svc.Upload(context.Background(), "u1", bytes.NewReader(body))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestUploadPropagatesStoreError(t *testing.T) {
	boom := errors.New("bucket gone")
	svc := NewService(&memStore{err: boom}, zerolog.Nop())
	_, err := svc.Upload(context.Background(), "u1", bytes.NewReader(gifHeader))
	require.ErrorIs(t, err, boom)
}
