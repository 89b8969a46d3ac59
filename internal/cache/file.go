package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"kvitto/internal/core"
)

// Logical names of the cached payloads.
const (
	ReceiptsName      = "receipts"
	ReceiptDetailName = "receipt-detail"
)

const (
	cacheDirPerm = 0o750
	fileExt      = ".json"
	tempPattern  = ".tmp-*"
)

// FileStore persists JSON payloads under <root>/<logicalName>/<key>.json.
//
// Writes go to a unique temp file in the target directory and are renamed
// into place, so readers never observe a partial file and concurrent writes
// of distinct keys never touch the same path. Decoding is tolerant: unknown
// fields are ignored and missing fields decode to zero values.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: empty cache root", core.ErrIO)
	}
	if err := os.MkdirAll(root, cacheDirPerm); err != nil {
		return nil, fmt.Errorf("%w: create cache root: %v", core.ErrIO, err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the cache directory.
func (s *FileStore) Root() string {
	return s.root
}

// Put stores payload as indented JSON, replacing any previous value.
func (s *FileStore) Put(ctx context.Context, name, key string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(name, key)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s/%s: %v", core.ErrIO, name, key, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, cacheDirPerm); err != nil {
		return fmt.Errorf("%w: create %s: %v", core.ErrIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", core.ErrIO, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", core.ErrIO, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", core.ErrIO, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %v", core.ErrIO, path, err)
	}
	return nil
}

// Get decodes the stored payload into out. A missing entry yields
// core.ErrNotFound; unreadable or corrupt content yields core.ErrIO.
func (s *FileStore) Get(ctx context.Context, name, key string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(name, key)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s/%s: %w", name, key, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", core.ErrIO, path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: corrupt %s: %v", core.ErrIO, path, err)
	}
	return nil
}

// List returns the keys stored under name in ascending order.
func (s *FileStore) List(ctx context.Context, name string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, name))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", core.ErrIO, name, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		fname := e.Name()
		if e.IsDir() || strings.HasPrefix(fname, ".") || !strings.HasSuffix(fname, fileExt) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(fname, fileExt))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *FileStore) path(name, key string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if key == "" || key == "." || key == ".." {
		return "", fmt.Errorf("%w: invalid cache key %q", core.ErrIO, key)
	}
	return filepath.Join(s.root, name, escapeKey(key)+fileExt), nil
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\.`) {
		return fmt.Errorf("%w: invalid logical name %q", core.ErrIO, name)
	}
	return nil
}

// escapeKey maps a key to a reversible file stem. A leading dot is escaped
// so stored entries never look like temp files.
func escapeKey(key string) string {
	esc := url.PathEscape(key)
	if strings.HasPrefix(esc, ".") {
		esc = "%2E" + esc[1:]
	}
	return esc
}
