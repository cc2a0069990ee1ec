package credentials

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewCipher error: %v", err)
	}
	return c
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := testCipher(t)
	sealed, err := c.Seal("user-1", PurposeWordPress, "abcd efgh ijkl")
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	if !strings.HasPrefix(sealed, "v1:") || strings.Contains(sealed, "abcd") {
		t.Fatalf("unexpected sealed value %q", sealed)
	}
	plain, err := c.Open("user-1", PurposeWordPress, sealed)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if plain != "abcd efgh ijkl" {
		t.Fatalf("Open = %q", plain)
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	c := testCipher(t)
	a, _ := c.Seal("u", PurposeThreads, "token")
	b, _ := c.Seal("u", PurposeThreads, "token")
	if a == b {
		t.Fatalf("expected different ciphertexts for the same plaintext")
	}
}

func TestOpenRejectsMismatchedBinding(t *testing.T) {
	c := testCipher(t)
	sealed, _ := c.Seal("user-1", PurposeThreads, "token")

	if _, err := c.Open("user-2", PurposeThreads, sealed); !errors.Is(err, ErrInvalidSealed) {
		t.Fatalf("expected ErrInvalidSealed for another owner, got %v", err)
	}
	if _, err := c.Open("user-1", PurposeWordPress, sealed); !errors.Is(err, ErrInvalidSealed) {
		t.Fatalf("expected ErrInvalidSealed for another purpose, got %v", err)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	c := testCipher(t)
	for _, in := range []string{"", "plain", "v1:!!!", "v1:AAAA"} {
		if _, err := c.Open("u", PurposeThreads, in); !errors.Is(err, ErrInvalidSealed) {
			t.Fatalf("Open(%q) error = %v, want ErrInvalidSealed", in, err)
		}
	}
}

func TestNewCipherKeyLength(t *testing.T) {
	if _, err := NewCipher([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestSealEmptySecret(t *testing.T) {
	if _, err := testCipher(t).Seal("u", PurposeThreads, "  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
