package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DiskStore is an ObjectStore rooted at a local directory. Access URLs are
// HMAC-SHA256 signed (`{base}/media/{path}?exp=..&sig=..`) and verified by
// the media-serving handler, so the UI can render media without
// re-authenticating, same as a bucket-issued presigned URL would allow.
type DiskStore struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewDiskStore creates the root directory if needed. baseURL is the
// externally reachable prefix the signed URLs are built on
// (e.g. "https://api.example.com"); secret keys the HMAC.
func NewDiskStore(root, baseURL string, secret []byte) (*DiskStore, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("storage: signing secret must not be empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, err
	}
	return &DiskStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Put implements ObjectStore. The path is cleaned and confined to the root;
// writing to an existing path is rejected (append-only store).
func (s *DiskStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); err == nil {
		return fmt.Errorf("storage: path already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o640)
}

// SignedURL implements ObjectStore.
func (s *DiskStore) SignedURL(path string, ttl time.Duration) (string, time.Time, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", time.Time{}, err
	}
	exp := s.now().Add(ttl)
	sig := s.sign(clean, exp.Unix())
	// Paths are generated internally (uuid + sanitized name), so segments
	// need no escaping and the URL stays matchable by the /media/*path route.
	u := fmt.Sprintf("%s/media/%s?exp=%d&sig=%s", s.baseURL, clean, exp.Unix(), sig)
	return u, exp, nil
}

// Verify checks the exp/sig query pair for a media path and returns the
// on-disk file location when valid. Expired or tampered requests get
// ErrBadSignature; missing objects get ErrNotFound.
func (s *DiskStore) Verify(path, expStr, sig string) (string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", ErrBadSignature
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return "", ErrBadSignature
	}
	want := s.sign(clean, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return "", ErrBadSignature
	}
	full, err := s.resolve(clean)
	if err != nil {
		return "", ErrBadSignature
	}
	if _, err := os.Stat(full); err != nil {
		return "", ErrNotFound
	}
	return full, nil
}

func (s *DiskStore) sign(path string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", path, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *DiskStore) resolve(path string) (string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// cleanPath normalizes a slash-separated object path and rejects anything
// that would escape the store root.
func cleanPath(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	clean := filepath.ToSlash(filepath.Clean(p))
	if clean == "." || clean == "" || strings.HasPrefix(clean, "..") || strings.Contains(clean, "/../") {
		return "", fmt.Errorf("storage: invalid path %q", p)
	}
	return clean, nil
}
