package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"maat-go/internal/maat"
)

// OSFilesystemManager is the real filesystem implementation of
// maat.FilesystemManager.
type OSFilesystemManager struct {
	logger maat.Logger
}

// NewOSFilesystemManager creates a filesystem manager that reads the real
// filesystem. Skipped entries are reported to logger at debug level; a nil
// logger discards them.
func NewOSFilesystemManager(logger maat.Logger) *OSFilesystemManager {
	if logger == nil {
		logger = maat.NewNopLogger()
	}
	return &OSFilesystemManager{logger: logger}
}

// Glob lists the entries under root matching pattern.
//
// Unreadable directories and broken symlinks are skipped rather than
// failing the scan. When symlinks are followed, a link resolving to a
// directory that is already on the current walk path is not entered, so
// looping links cannot produce phantom paths.
func (m *OSFilesystemManager) Glob(ctx context.Context, root, pattern string, opts maat.ScanOptions) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, &maat.ScanError{Root: root, Pattern: pattern, Err: doublestar.ErrBadPattern}
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, &maat.ScanError{Root: root, Pattern: pattern, Err: err}
	}
	if !info.IsDir() {
		return nil, &maat.ScanError{Root: root, Pattern: pattern, Err: fmt.Errorf("not a directory")}
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, &maat.ScanError{Root: root, Pattern: pattern, Err: err}
	}

	w := &globWalker{
		ctx:       ctx,
		pattern:   pattern,
		segments:  patternSegments(pattern),
		opts:      opts,
		logger:    m.logger,
		ancestors: make(map[string]bool),
		out:       []string{},
	}
	if err := w.walk(root, realRoot, ""); err != nil {
		return nil, err
	}
	slices.Sort(w.out)
	return w.out, nil
}

// ReadFile returns the contents of the file at path.
func (m *OSFilesystemManager) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path, following symlinks.
func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// CreationTime returns the birth time of path, or its modification time
// when the filesystem does not record one.
func (m *OSFilesystemManager) CreationTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if bt, ok := birthTime(path, info); ok {
		return bt, nil
	}
	return info.ModTime(), nil
}

// globWalker matches one pattern against a directory tree.
type globWalker struct {
	ctx      context.Context
	pattern  string
	segments []string // nil disables pruning
	opts     maat.ScanOptions
	logger   maat.Logger

	// ancestors holds the resolved paths of the directories being walked.
	ancestors map[string]bool
	out       []string
}

func (w *globWalker) walk(dir, realDir, rel string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.ancestors[realDir] = true
	defer delete(w.ancestors, realDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Debug("skipping unreadable directory", "path", dir, "error", err)
		return nil
	}

	for _, e := range entries {
		name := e.Name()
		if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		childPath := filepath.Join(dir, name)
		childReal := filepath.Join(realDir, name)
		childRel := path.Join(rel, name)
		isDir := e.IsDir()

		if e.Type()&fs.ModeSymlink != 0 && w.opts.FollowSymlinks {
			target, err := filepath.EvalSymlinks(childPath)
			if err != nil {
				w.logger.Debug("skipping broken symlink", "path", childPath, "error", err)
				continue
			}
			info, err := os.Stat(target)
			if err != nil {
				w.logger.Debug("skipping unreadable symlink target", "path", childPath, "error", err)
				continue
			}
			isDir = info.IsDir()
			childReal = target
			if isDir && w.ancestors[target] {
				w.logger.Debug("skipping symlink cycle", "path", childPath, "target", target)
				continue
			}
		}

		if !isDir {
			if w.match(childRel) {
				w.out = append(w.out, childRel)
			}
			continue
		}
		if !w.opts.OnlyFiles && w.match(childRel) {
			w.out = append(w.out, childRel)
		}
		if w.mayContainMatches(childRel) {
			if err := w.walk(childPath, childReal, childRel); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *globWalker) match(rel string) bool {
	ok, _ := doublestar.Match(w.pattern, rel)
	return ok
}

// mayContainMatches reports whether entries below dir can match, comparing
// dir's segments with the pattern's up to the first "**".
func (w *globWalker) mayContainMatches(dir string) bool {
	if w.segments == nil {
		return true
	}
	for i, seg := range strings.Split(dir, "/") {
		if i >= len(w.segments)-1 {
			return false
		}
		if w.segments[i] == "**" {
			return true
		}
		if ok, _ := doublestar.Match(w.segments[i], seg); !ok {
			return false
		}
	}
	return true
}

// patternSegments splits pattern on "/". It returns nil when a brace group
// spans a separator, since segments can then not be matched one by one.
func patternSegments(pattern string) []string {
	segments := strings.Split(pattern, "/")
	for _, seg := range segments {
		if strings.Count(seg, "{") != strings.Count(seg, "}") {
			return nil
		}
	}
	return segments
}

// Compile-time check that OSFilesystemManager implements maat.FilesystemManager
var _ maat.FilesystemManager = (*OSFilesystemManager)(nil)
