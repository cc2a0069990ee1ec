package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorePut(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	url, err := fs.Put(context.Background(), "uploads/u1/a.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "http://localhost:8080/static/uploads/u1/a.png" {
		t.Fatalf("url = %q", url)
	}
	got, err := os.ReadFile(filepath.Join(dir, "uploads", "u1", "a.png"))
	if err != nil || string(got) != "png" {
		t.Fatalf("stored file = %q, %v", got, err)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "uploads/a.png", want: "uploads/a.png"},
		{in: "/uploads//a.png", want: "uploads/a.png"},
		{in: `uploads\a.png`, want: "uploads/a.png"},
		{in: "../etc/passwd", wantErr: true},
		{in: "..", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("sanitizeKey(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestPublicBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{name: "explicit", cfg: S3Config{PublicBaseURL: "https://cdn.example.com/", Bucket: "b"}, want: "https://cdn.example.com"},
		{name: "ssl", cfg: S3Config{UseSSL: true, Bucket: "media"}, want: "https://s3.example.com/media"},
		{name: "plain", cfg: S3Config{Bucket: "media"}, want: "http://s3.example.com/media"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := publicBaseURL(tc.cfg, "s3.example.com"); got != tc.want {
				t.Fatalf("publicBaseURL() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(S3Config{Endpoint: "s3.example.com"}); err == nil {
		t.Fatal("expected error without bucket")
	}
	store, err := NewS3Store(S3Config{Endpoint: "https://s3.example.com", Bucket: "media", UseSSL: true})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	if store.baseURL != "https://s3.example.com/media" {
		t.Fatalf("baseURL = %q", store.baseURL)
	}
}
