package maat

import (
	"context"
	"io/fs"
	"time"
)

// ScanOptions tunes a single Glob call.
type ScanOptions struct {
	// FollowSymlinks makes the walk descend into symlinked directories.
	FollowSymlinks bool
	// OnlyFiles drops directories from the result.
	OnlyFiles bool
	// IncludeHidden keeps entries with a path segment starting with ".".
	IncludeHidden bool
}

// FilesystemManager provides the read-only file-system operations the index
// builders need. It abstracts file access so rebuilds can be exercised
// against scripted or faulty file systems in tests.
type FilesystemManager interface {
	// Glob lists the paths under root matching pattern (doublestar syntax).
	// Results are relative to root, slash separated and sorted; every call
	// returns a fresh slice. Unreadable entries are skipped. An invalid
	// pattern or a missing root fails with a *ScanError.
	Glob(ctx context.Context, root, pattern string, opts ScanOptions) ([]string, error)

	// ReadFile returns the contents of the file at path.
	ReadFile(path string) ([]byte, error)

	// Stat returns file info for path, following symlinks.
	Stat(path string) (fs.FileInfo, error)

	// CreationTime returns the birth time of path where the platform
	// records one, and its modification time otherwise.
	CreationTime(path string) (time.Time, error)
}

// AssetKind identifies one of the asset trees of a collection.
type AssetKind string

const (
	KindModels    AssetKind = "models"
	KindPanoramas AssetKind = "panoramas"
	KindMedia     AssetKind = "media"
)

// Dir returns the directory name the kind is stored under inside an
// owner's collection.
func (k AssetKind) Dir() string {
	if k == KindPanoramas {
		return "pano"
	}
	return string(k)
}

// ExclusionRules decides which collection paths are derived or internal
// artifacts rather than primary assets.
type ExclusionRules interface {
	Excluded(kind AssetKind, relPath string) bool
}
