package local

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"filevault-backend/internal/shared/storage/object"
)

const defaultListPageSize = 1000

var (
	// ErrInvalidSignature is returned by Verify for tampered or expired URLs.
	ErrInvalidSignature = errors.New("invalid or expired signature")
	errInvalidKey       = errors.New("invalid storage key")
)

// Options configures the filesystem store.
type Options struct {
	BaseDir       string
	PublicBaseURL string
	SigningKey    string
	ListPageSize  int
}

// Store implements ObjectStore using the local filesystem. Signed URLs carry
// an HMAC over the key and expiry that Verify checks when the object is served.
type Store struct {
	baseDir  string
	baseURL  string
	key      []byte
	pageSize int
	now      func() time.Time
}

// New creates a new local object store rooted at opts.BaseDir.
func New(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.BaseDir) == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	if strings.TrimSpace(opts.SigningKey) == "" {
		return nil, fmt.Errorf("local signing key is required")
	}
	if err := os.MkdirAll(opts.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	pageSize := opts.ListPageSize
	if pageSize <= 0 {
		pageSize = defaultListPageSize
	}
	return &Store{
		baseDir:  opts.BaseDir,
		baseURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
		key:      []byte(opts.SigningKey),
		pageSize: pageSize,
		now:      time.Now,
	}, nil
}

// Put writes the reader to disk at the given storage key.
func (s *Store) Put(ctx context.Context, storageKey, contentType string, r io.Reader, public bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fullPath, err := s.resolve(storageKey)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	// World-readable mode marks objects that may be served without a signature.
	mode := os.FileMode(0o600)
	if public {
		mode = 0o644
	}
	if err := f.Chmod(mode); err != nil {
		return 0, fmt.Errorf("chmod: %w", err)
	}

	written, err := io.Copy(f, r)
	if err != nil {
		return 0, fmt.Errorf("write body: %w", err)
	}
	return written, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(storageKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, object.ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

// IsPublic reports whether the object was stored as public.
func (s *Store) IsPublic(storageKey string) bool {
	fullPath, err := s.resolve(storageKey)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0o004 != 0
}

// SignURL returns a URL with an expiry and signature query.
func (s *Store) SignURL(ctx context.Context, storageKey string, validity time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fullPath, err := s.resolve(storageKey)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat key=%s: %w", storageKey, object.ErrObjectNotFound)
		}
		return "", fmt.Errorf("stat key=%s: %w", storageKey, err)
	}

	expires := strconv.FormatInt(s.now().Add(validity).Unix(), 10)
	q := url.Values{}
	q.Set("expires", expires)
	q.Set("signature", s.sign(storageKey, expires))
	return s.PublicURL(storageKey) + "?" + q.Encode(), nil
}

// Verify checks a signature produced by SignURL.
func (s *Store) Verify(storageKey, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return ErrInvalidSignature
	}
	want := s.sign(storageKey, expires)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// PublicURL returns the URL the object is served under.
func (s *Store) PublicURL(storageKey string) string {
	parts := strings.Split(strings.TrimLeft(storageKey, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(parts, "/")
}

// Delete removes the object. Missing keys are treated as already deleted.
func (s *Store) Delete(ctx context.Context, storageKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(storageKey)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove key=%s: %w", storageKey, err)
	}
	return nil
}

// ListPage walks the tree in lexical order and returns up to one page of keys
// after token. The token is the last key of the previous page.
func (s *Store) ListPage(ctx context.Context, token string) (object.Page, error) {
	var page object.Page
	more := false

	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if token != "" && compareKeys(key, token) <= 0 {
			return nil
		}
		if len(page.Objects) == s.pageSize {
			more = true
			return fs.SkipAll
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		page.Objects = append(page.Objects, object.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return object.Page{}, fmt.Errorf("walk %s: %w", s.baseDir, err)
	}
	if more {
		page.NextToken = page.Objects[len(page.Objects)-1].Key
	}
	return page, nil
}

func (s *Store) sign(storageKey, expires string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(storageKey))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Store) resolve(storageKey string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(storageKey))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", errInvalidKey
	}
	return filepath.Join(s.baseDir, clean), nil
}

// compareKeys orders keys segment by segment, matching the order WalkDir visits files.
func compareKeys(a, b string) int {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return len(as) - len(bs)
}

var _ object.ObjectStore = (*Store)(nil)
