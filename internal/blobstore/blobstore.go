// Package blobstore keeps finished exports on disk and hands out URLs for
// them, either through the local HTTP server or as file:// URLs.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or revoked blobs.
var ErrNotFound = errors.New("blob not found")

// Blob is a stored object.
type Blob struct {
	ID        string    `json:"id"`
	MIME      string    `json:"mime"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store saves blobs under a directory. Each blob is a data file plus a
// small JSON sidecar holding its metadata.
type Store struct {
	dir string
	// baseURL is the HTTP prefix blobs are served under; empty means file URLs.
	baseURL string

	mu sync.Mutex
}

// New opens (creating if needed) a store in dir. baseURL may be empty.
func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// SetBaseURL switches URL generation to an HTTP prefix, e.g. once the local
// server knows its address.
func (s *Store) SetBaseURL(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = strings.TrimRight(base, "/")
}

func (s *Store) dataPath(id string) string { return filepath.Join(s.dir, id+".bin") }
func (s *Store) metaPath(id string) string { return filepath.Join(s.dir, id+".json") }

// Put stores r. An empty mime is sniffed from the content.
func (s *Store) Put(r io.Reader, mime, filename string) (Blob, error) {
	id := uuid.NewString()
	f, err := os.Create(s.dataPath(id))
	if err != nil {
		return Blob{}, fmt.Errorf("failed to create blob: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(s.dataPath(id))
		return Blob{}, fmt.Errorf("failed to write blob: %w", err)
	}

	if mime == "" {
		detected, err := mimetype.DetectFile(s.dataPath(id))
		if err == nil {
			mime = detected.String()
		} else {
			mime = "application/octet-stream"
		}
	}

	b := Blob{ID: id, MIME: mime, Filename: filename, Size: size, CreatedAt: time.Now().UTC()}
	meta, err := json.Marshal(b)
	if err != nil {
		os.Remove(s.dataPath(id))
		return Blob{}, fmt.Errorf("failed to marshal blob metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(id), meta, 0644); err != nil {
		os.Remove(s.dataPath(id))
		return Blob{}, fmt.Errorf("failed to write blob metadata: %w", err)
	}
	return b, nil
}

// CreateObjectURL stores r and returns its URL.
func (s *Store) CreateObjectURL(r io.Reader, mime, filename string) (string, error) {
	b, err := s.Put(r, mime, filename)
	if err != nil {
		return "", err
	}
	return s.URL(b), nil
}

// URL returns where b can be fetched.
func (s *Store) URL(b Blob) string {
	s.mu.Lock()
	base := s.baseURL
	s.mu.Unlock()
	if base != "" {
		return base + "/blobs/" + b.ID
	}
	abs, err := filepath.Abs(s.dataPath(b.ID))
	if err != nil {
		abs = s.dataPath(b.ID)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// Stat returns a blob's metadata.
func (s *Store) Stat(id string) (Blob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Blob{}, ErrNotFound
	}
	data, err := os.ReadFile(s.metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return Blob{}, ErrNotFound
	}
	if err != nil {
		return Blob{}, fmt.Errorf("failed to read blob metadata: %w", err)
	}
	var b Blob
	if err := json.Unmarshal(data, &b); err != nil {
		return Blob{}, fmt.Errorf("failed to parse blob metadata: %w", err)
	}
	return b, nil
}

// Open returns a blob's metadata and an open handle on its data.
func (s *Store) Open(id string) (Blob, *os.File, error) {
	b, err := s.Stat(id)
	if err != nil {
		return Blob{}, nil, err
	}
	f, err := os.Open(s.dataPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return Blob{}, nil, ErrNotFound
	}
	if err != nil {
		return Blob{}, nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return b, f, nil
}

// Revoke deletes a blob. Revoking an unknown blob is not an error.
func (s *Store) Revoke(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	for _, p := range []string{s.dataPath(id), s.metaPath(id)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to revoke blob: %w", err)
		}
	}
	return nil
}

// RevokeObjectURL revokes the blob behind a URL returned by CreateObjectURL.
func (s *Store) RevokeObjectURL(u string) error {
	id, ok := s.IDFromURL(u)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, u)
	}
	return s.Revoke(id)
}

// IDFromURL extracts the blob ID from a URL produced by this store.
func (s *Store) IDFromURL(u string) (string, bool) {
	var tail string
	if i := strings.LastIndex(u, "/blobs/"); i >= 0 {
		tail = u[i+len("/blobs/"):]
	} else {
		tail = strings.TrimSuffix(filepath.Base(filepath.FromSlash(strings.TrimPrefix(u, "file://"))), ".bin")
	}
	if _, err := uuid.Parse(tail); err != nil {
		return "", false
	}
	return tail, true
}

// Path returns the on-disk location of a blob's data.
func (s *Store) Path(id string) string { return s.dataPath(id) }
