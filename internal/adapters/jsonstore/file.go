package jsonstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrMalformedDocument is returned when a persisted file cannot be parsed.
// Malformed files are never overwritten.
var ErrMalformedDocument = errors.New("malformed document")

// writeJSONAtomic writes v as indented JSON to a temp file and renames it into place
func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// readJSON decodes path into dest. A missing file is reported with os.ErrNotExist.
func readJSON(path string, dest any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedDocument, path, err)
	}
	return nil
}

// CatalogFile persists the location catalog as one JSON document
type CatalogFile struct {
	path string
}

// NewCatalogFile creates a catalog file handle
func NewCatalogFile(path string) *CatalogFile {
	return &CatalogFile{path: path}
}

func (f *CatalogFile) Path() string {
	return f.path
}

// Exists reports whether the catalog file is present
func (f *CatalogFile) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Load decodes the catalog into dest
func (f *CatalogFile) Load(dest any) error {
	return readJSON(f.path, dest)
}

// Save rewrites the whole catalog
func (f *CatalogFile) Save(v any) error {
	return writeJSONAtomic(f.path, v)
}
