package storage

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newStore(t *testing.T) *DiskStore {
	t.Helper()
	s, err := NewDiskStore(t.TempDir(), "http://localhost:8080/", []byte("test-secret"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

// splitSigned pulls the object path and exp/sig query pair out of a signed URL.
func splitSigned(t *testing.T, signed string) (path, exp, sig string) {
	t.Helper()
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	path = strings.TrimPrefix(u.Path, "/media/")
	return path, u.Query().Get("exp"), u.Query().Get("sig")
}

func TestPutAndVerifyRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	p := "t1/2026/03/obj-1.jpg"

	if err := s.Put(ctx, p, []byte("bytes"), "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}

	signed, exp, err := s.SignedURL(p, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Errorf("expiry: %v", exp)
	}

	gotPath, expStr, sig := splitSigned(t, signed)
	full, err := s.Verify(gotPath, expStr, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	data, err := os.ReadFile(full)
	if err != nil || string(data) != "bytes" {
		t.Errorf("stored content: %q, %v", data, err)
	}
}

func TestPut_RejectsExistingPath(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	p := "t1/dup.bin"

	if err := s.Put(ctx, p, []byte("a"), ""); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := s.Put(ctx, p, []byte("b"), ""); err == nil {
		t.Fatal("overwrite allowed")
	}
}

func TestPut_RejectsTraversal(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, p := range []string{"../outside.bin", "t1/../../outside.bin", "", "."} {
		if err := s.Put(ctx, p, []byte("x"), ""); err == nil {
			t.Errorf("path %q accepted", p)
		}
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	p := "t1/tamper.bin"
	s.Put(ctx, p, []byte("x"), "")

	signed, _, _ := s.SignedURL(p, time.Hour)
	gotPath, expStr, _ := splitSigned(t, signed)

	if _, err := s.Verify(gotPath, expStr, "deadbeef"); !errors.Is(err, ErrBadSignature) {
		t.Errorf("bad sig: %v", err)
	}
	// Extending exp without re-signing invalidates too.
	later := strconv.FormatInt(time.Now().Add(48*time.Hour).Unix(), 10)
	_, _, sig := splitSigned(t, signed)
	if _, err := s.Verify(gotPath, later, sig); !errors.Is(err, ErrBadSignature) {
		t.Errorf("stretched exp: %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	p := "t1/expired.bin"
	s.Put(ctx, p, []byte("x"), "")

	s.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }
	signed, _, _ := s.SignedURL(p, time.Hour)
	s.now = func() time.Time { return time.Now().UTC() }

	gotPath, expStr, sig := splitSigned(t, signed)
	if _, err := s.Verify(gotPath, expStr, sig); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expired url: %v", err)
	}
}

func TestVerify_MissingObject(t *testing.T) {
	s := newStore(t)
	signed, _, _ := s.SignedURL("t1/nothing-here.bin", time.Hour)
	gotPath, expStr, sig := splitSigned(t, signed)

	if _, err := s.Verify(gotPath, expStr, sig); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing object: %v", err)
	}
}

func TestVerify_ConfinedToRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewDiskStore(filepath.Join(root, "store"), "http://localhost:8080", []byte("test-secret"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	// Even a correctly signed traversal path must not resolve.
	p := "../escape.bin"
	exp := time.Now().Add(time.Hour).Unix()
	sig := s.sign(p, exp)
	if _, err := s.Verify(p, strconv.FormatInt(exp, 10), sig); err == nil {
		t.Fatal("traversal path verified")
	}
}

func TestNewDiskStore_RequiresSecret(t *testing.T) {
	if _, err := NewDiskStore(t.TempDir(), "http://x", nil); err == nil {
		t.Fatal("empty secret accepted")
	}
}
