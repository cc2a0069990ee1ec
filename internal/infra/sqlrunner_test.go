package infra

import (
	"testing"
)

func TestExtractMarker(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantMarker string
		wantSQL    string
		wantErr    bool
	}{
		{
			name:       "valid marker",
			query:      "--sql 0b9f6c1e-3d52-4d0c-9a8b-2f1e6a7c5d34\nselect 1;",
			wantMarker: "0b9f6c1e-3d52-4d0c-9a8b-2f1e6a7c5d34",
			wantSQL:    "select 1;",
		},
		{
			name:       "leading whitespace",
			query:      "\n  --sql 0b9f6c1e-3d52-4d0c-9a8b-2f1e6a7c5d34\nselect 1\nfrom users;",
			wantMarker: "0b9f6c1e-3d52-4d0c-9a8b-2f1e6a7c5d34",
			wantSQL:    "select 1\nfrom users;",
		},
		{name: "missing marker", query: "select 1;", wantErr: true},
		{name: "uppercase uuid rejected", query: "--sql 0B9F6C1E-3D52-4D0C-9A8B-2F1E6A7C5D34\nselect 1;", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			marker, sql, err := extractMarker(tc.query)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("extractMarker() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("extractMarker() error = %v", err)
			}
			if marker != tc.wantMarker || sql != tc.wantSQL {
				t.Fatalf("extractMarker() = (%q, %q), want (%q, %q)", marker, sql, tc.wantMarker, tc.wantSQL)
			}
		})
	}
}
