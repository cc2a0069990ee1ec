package infra

import (
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/static" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if len(cfg.EncryptionKey) != 32 {
		t.Fatalf("EncryptionKey length = %d, want 32", len(cfg.EncryptionKey))
	}
	if cfg.S3Enabled() {
		t.Fatalf("S3Enabled() = true without endpoint")
	}
	if cfg.MonthlyGrantCron != "0 0 1 * *" {
		t.Fatalf("MonthlyGrantCron = %q", cfg.MonthlyGrantCron)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "1919")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:1919/static" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
}

func TestLoadConfigSplitsOrigins(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,http://localhost:3000 ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"https://app.example.com", "http://localhost:3000"}
	if len(cfg.CORSAllowedOrigins) != len(want) {
		t.Fatalf("CORSAllowedOrigins = %#v, want %#v", cfg.CORSAllowedOrigins, want)
	}
	for i := range want {
		if cfg.CORSAllowedOrigins[i] != want[i] {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], want[i])
		}
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "postgres without url", env: map[string]string{"STORE_BACKEND": "postgres", "DATABASE_URL": ""}, wantErr: "DATABASE_URL"},
		{name: "firestore without project", env: map[string]string{"STORE_BACKEND": "firestore", "FIREBASE_PROJECT_ID": ""}, wantErr: "FIREBASE_PROJECT_ID"},
		{name: "unknown backend", env: map[string]string{"STORE_BACKEND": "mysql"}, wantErr: "STORE_BACKEND"},
		{name: "jwt without secret", env: map[string]string{"JWT_SECRET": ""}, wantErr: "JWT_SECRET"},
		{name: "missing key", env: map[string]string{"ENCRYPTION_KEY": ""}, wantErr: "ENCRYPTION_KEY is required"},
		{name: "short key", env: map[string]string{"ENCRYPTION_KEY": "abcd"}, wantErr: "32 bytes"},
		{name: "non hex key", env: map[string]string{"ENCRYPTION_KEY": "zz"}, wantErr: "hex"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("LoadConfig() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
