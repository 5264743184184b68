package testutil

import (
	"context"
	"strings"
	"sync"

	"maat-go/internal/fs"
	"maat-go/internal/maat"
)

// ScriptedFilesystemManager wraps the real filesystem manager, counting
// Glob calls and letting tests hold scans open or make them fail.
type ScriptedFilesystemManager struct {
	maat.FilesystemManager

	mu       sync.Mutex
	globs    map[string]int // pattern → calls
	gate     chan struct{}
	started  chan string
	failures []globFailure
}

type globFailure struct {
	substr string
	err    error
}

// NewScriptedFilesystemManager creates a manager backed by the real filesystem.
func NewScriptedFilesystemManager() *ScriptedFilesystemManager {
	return &ScriptedFilesystemManager{
		FilesystemManager: fs.NewOSFilesystemManager(nil),
		globs:             make(map[string]int),
	}
}

// Glob records the call, waits on the gate if one is set, then either
// returns the scripted failure or delegates to the real filesystem.
func (m *ScriptedFilesystemManager) Glob(ctx context.Context, root, pattern string, opts maat.ScanOptions) ([]string, error) {
	m.mu.Lock()
	m.globs[pattern]++
	gate, started := m.gate, m.started
	var failure error
	for _, f := range m.failures {
		if strings.Contains(pattern, f.substr) {
			failure = f.err
			break
		}
	}
	m.mu.Unlock()

	if started != nil {
		started <- pattern
	}
	if gate != nil {
		<-gate
	}
	if failure != nil {
		return nil, &maat.ScanError{Root: root, Pattern: pattern, Err: failure}
	}
	return m.FilesystemManager.Glob(ctx, root, pattern, opts)
}

// Block makes every subsequent Glob announce itself on the returned
// channel and then wait until release is called.
func (m *ScriptedFilesystemManager) Block() (started <-chan string, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	ch := make(chan string, 64)
	m.gate = gate
	m.started = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate, m.started = nil, nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// FailGlobs makes every Glob whose pattern contains substr fail with err.
func (m *ScriptedFilesystemManager) FailGlobs(substr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, globFailure{substr: substr, err: err})
}

// Heal removes every scripted failure.
func (m *ScriptedFilesystemManager) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = nil
}

// GlobCalls returns how many Glob calls had a pattern containing substr.
// An empty substr counts every call.
func (m *ScriptedFilesystemManager) GlobCalls(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for p, c := range m.globs {
		if strings.Contains(p, substr) {
			n += c
		}
	}
	return n
}

var _ maat.FilesystemManager = (*ScriptedFilesystemManager)(nil)
