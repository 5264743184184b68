package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"maat-go/internal/maat"
)

// FileSystemPublisher writes documents as files under a root directory,
// where a web server can serve them as a static catalog.
type FileSystemPublisher struct {
	root string
}

// NewFileSystemPublisher creates the root directory if needed.
func NewFileSystemPublisher(root string) (*FileSystemPublisher, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create publish directory: %w", err)
	}
	return &FileSystemPublisher{root: root}, nil
}

// Put writes the document atomically: readers of the catalog see either
// the previous file or the new one.
func (p *FileSystemPublisher) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	dest, err := p.path(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(p.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Get writes a published document to w.
func (p *FileSystemPublisher) Get(ctx context.Context, name string, w io.Writer) error {
	src, err := p.path(name)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("document not found: %s", name)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the root is an accessible directory.
func (p *FileSystemPublisher) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(p.root)
	if err != nil {
		return fmt.Errorf("publish root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("publish root is not a directory: %s", p.root)
	}
	return nil
}

// path maps a document name to a file directly under root.
func (p *FileSystemPublisher) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid document name: %q", name)
	}
	return filepath.Join(p.root, name), nil
}

var _ maat.Publisher = (*FileSystemPublisher)(nil)
