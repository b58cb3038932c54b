package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/api/domain"
)

var (
	ErrInvalidKey       = errors.New("invalid object key")
	ErrInvalidSignature = errors.New("invalid download signature")
	ErrURLExpired       = errors.New("download url expired")
)

// metaPrefix names the hidden sidecar holding an object's content type.
const metaPrefix = ".meta-"

// Config holds filesystem object store settings.
type Config struct {
	RootDir       string
	PublicBaseURL string
	SigningSecret string
}

// Object is an open stored file with the content type it was put with.
// ContentType is empty when none was declared.
type Object struct {
	*os.File
	ContentType string
}

// FileStore keeps objects as files under a root directory and hands out
// HMAC signed download urls served by the API.
type FileStore struct {
	root    string
	baseURL string
	secret  []byte
	now     func() time.Time
}

func NewFileStore(cfg Config) (*FileStore, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("object store root dir is required")
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("object store signing secret is required")
	}
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}

	return &FileStore{
		root:    cfg.RootDir,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		secret:  []byte(cfg.SigningSecret),
		now:     time.Now,
	}, nil
}

// Put writes body under key and records contentType next to it. The file
// appears atomically once fully written, after its content type.
func (s *FileStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	target, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp object: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close object: %w", err)
	}
	if err := writeMeta(metaPath(target), contentType); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		os.Remove(metaPath(target))
		return "", fmt.Errorf("failed to store object: %w", err)
	}

	return key, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	if err := os.Remove(metaPath(target)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object metadata: %w", err)
	}
	return nil
}

// Presign returns a download url for key valid for ttl.
func (s *FileStore) Presign(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(key); err != nil {
		return "", err
	}

	expires := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	query := url.Values{}
	query.Set("expires", expires)
	query.Set("signature", s.sign(key, expires))

	return s.baseURL + "/api/v1/objects/" + escapeKey(key) + "?" + query.Encode(), nil
}

// Verify checks a download request produced by Presign.
func (s *FileStore) Verify(key, expires, signature string) error {
	if _, err := s.resolve(key); err != nil {
		return err
	}

	want := s.sign(key, expires)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrInvalidSignature
	}

	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return ErrURLExpired
	}
	return nil
}

// Open returns the stored file for key with its declared content type.
func (s *FileStore) Open(key string) (*Object, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}

	contentType, err := os.ReadFile(metaPath(target))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		f.Close()
		return nil, fmt.Errorf("failed to read object metadata: %w", err)
	}
	return &Object{File: f, ContentType: string(contentType)}, nil
}

func metaPath(target string) string {
	return filepath.Join(filepath.Dir(target), metaPrefix+filepath.Base(target))
}

// writeMeta stores contentType, or clears a stale one when it is empty.
func writeMeta(path, contentType string) error {
	if contentType == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to clear object metadata: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(path, []byte(contentType), 0o644); err != nil {
		return fmt.Errorf("failed to write object metadata: %w", err)
	}
	return nil
}

func (s *FileStore) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

// resolve maps a slash separated key to a path under root, refusing keys
// that would escape it. Dot-prefixed segments are reserved for temp files
// and metadata sidecars.
func (s *FileStore) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if path.Clean(key) != key {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if strings.HasPrefix(segment, ".") {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
