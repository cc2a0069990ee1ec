package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchive(t *testing.T) {
	data, err := Archive([]Entry{
		{Name: "hello.html", Data: []byte("<p>hi</p>")},
		{Name: "hello.html", Data: []byte("<p>again</p>")},
		{Name: "../escape.html", Data: []byte("x")},
	})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	want := map[string]string{
		"hello.html":   "<p>hi</p>",
		"hello-2.html": "<p>again</p>",
		"escape.html":  "x",
	}
	if len(zr.File) != len(want) {
		t.Fatalf("archive has %d files, want %d", len(zr.File), len(want))
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, _ := io.ReadAll(rc)
		_ = rc.Close()
		if want[f.Name] != string(body) {
			t.Fatalf("%s = %q, want %q", f.Name, body, want[f.Name])
		}
	}
}
