// Package publish stores catalog documents produced by maat.Service.PublishCatalog.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"maat-go/internal/maat"
)

// MemoryPublisher keeps published documents in memory. It is safe for
// concurrent use.
type MemoryPublisher struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{docs: make(map[string][]byte)}
}

// Put stores a document, replacing any previous version.
func (m *MemoryPublisher) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = data
	return nil
}

// Get writes a stored document to w.
func (m *MemoryPublisher) Get(ctx context.Context, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.docs[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("document not found: %s", name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// Names returns the stored document names, sorted.
func (m *MemoryPublisher) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.docs))
	for n := range m.docs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// ValidateSetup always succeeds for the in-memory publisher.
func (m *MemoryPublisher) ValidateSetup(ctx context.Context) error {
	return nil
}

var _ maat.Publisher = (*MemoryPublisher)(nil)
