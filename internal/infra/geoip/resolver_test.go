package geoip

import (
	"errors"
	"testing"
)

type countingResolver struct {
	calls int
}

func (c *countingResolver) CountryCode(ip string) (string, error) {
	c.calls++
	if ip == "bad" {
		return "", errors.New("invalid")
	}
	return "NL", nil
}

func TestLookupCaches(t *testing.T) {
	res := &countingResolver{}
	lookup := Lookup(res)
	for i := 0; i < 3; i++ {
		got, err := lookup("203.0.113.9")
		if err != nil || got != "NL" {
			t.Fatalf("lookup = %q, %v", got, err)
		}
	}
	if res.calls != 1 {
		t.Fatalf("calls = %d, want 1", res.calls)
	}
	if _, err := lookup("bad"); err == nil {
		t.Fatal("expected error")
	}
}

func TestLookupNil(t *testing.T) {
	if Lookup(nil) != nil {
		t.Fatal("Lookup(nil) should be nil")
	}
	var r *Resolver
	if Lookup(r) != nil {
		t.Fatal("Lookup of nil *Resolver should be nil")
	}
	if _, err := r.CountryCode("1.1.1.1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewResolverEmptyPath(t *testing.T) {
	r, err := NewResolver(" ")
	if err != nil || r != nil {
		t.Fatalf("NewResolver(\"\") = %v, %v", r, err)
	}
}
