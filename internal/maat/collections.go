package maat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"maat-go/internal/model"
)

// collectionKinds is the scan order of a collection rebuild.
var collectionKinds = []AssetKind{KindModels, KindPanoramas, KindMedia}

// ErrInvalidOwner is returned when an owner name cannot address a collection.
var ErrInvalidOwner = errors.New("invalid owner name")

// validOwner rejects owner names that would escape the collections root or
// alter the glob pattern they are spliced into.
func validOwner(owner string) bool {
	if owner == "" || owner == "." || owner == ".." {
		return false
	}
	return !strings.ContainsAny(owner, `/\*?[]{},!`)
}

// collectionTracker returns the tracker of owner's collection, creating it
// on first use. Concurrent first callers share one tracker.
func (s *Service) collectionTracker(owner string) (*tracker[model.CollectionIndex], error) {
	if !validOwner(owner) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOwner, owner)
	}
	t, _ := s.collections.LoadOrCompute(owner, func() *tracker[model.CollectionIndex] {
		return newTracker(CollectionNamespace(owner), s.opts.Interval, s.clock, s.life,
			func(ctx context.Context) (*model.CollectionIndex, error) {
				return s.buildCollection(ctx, owner)
			},
			func(c *model.CollectionIndex) int { return c.Len() },
			s.onRebuild)
	})
	return t, nil
}

// buildCollection scans the three asset trees of owner concurrently. If any
// scan fails the whole rebuild fails and nothing is published.
func (s *Service) buildCollection(ctx context.Context, owner string) (*model.CollectionIndex, error) {
	results := make([][]string, len(collectionKinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range collectionKinds {
		g.Go(func() error {
			paths, err := s.scanKind(gctx, owner, kind)
			if err != nil {
				return err
			}
			results[i] = paths
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := &model.CollectionIndex{
		Models:    results[0],
		Panoramas: results[1],
		Media:     results[2],
	}
	s.logger.Debug("collection indexed", "owner", owner,
		"models", len(idx.Models), "panoramas", len(idx.Panoramas), "media", len(idx.Media))
	return idx, nil
}

func (s *Service) scanKind(ctx context.Context, owner string, kind AssetKind) ([]string, error) {
	pattern := s.collectionPattern(owner, kind)
	files, err := s.fsmgr.Glob(ctx, s.opts.CollectionsDir, pattern, ScanOptions{
		FollowSymlinks: s.opts.FollowSymlinks,
		OnlyFiles:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s of %s: %w", kind, owner, err)
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		if s.opts.Exclusions != nil && s.opts.Exclusions.Excluded(kind, f) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// collectionPattern builds e.g. "{alice,samples}/models/**/*{.glb,.gltf}".
func (s *Service) collectionPattern(owner string, kind AssetKind) string {
	owners := owner
	if s.opts.SharedOwner != "" && s.opts.SharedOwner != owner {
		owners = "{" + owner + "," + s.opts.SharedOwner + "}"
	}
	exts := s.opts.Extensions[kind]
	suffix := "*"
	switch len(exts) {
	case 0:
	case 1:
		suffix = "*" + exts[0]
	default:
		suffix = "*{" + strings.Join(exts, ",") + "}"
	}
	return owners + "/" + kind.Dir() + "/**/" + suffix
}

// UserCollection returns every primary asset visible to owner. Unknown
// owners get an empty collection.
func (s *Service) UserCollection(ctx context.Context, owner string) (model.CollectionIndex, error) {
	empty := model.CollectionIndex{}.Clone()

	known, err := s.knownOwner(ctx, owner)
	if err != nil || !known {
		return empty, err
	}
	t, err := s.collectionTracker(owner)
	if err != nil {
		return empty, nil
	}
	idx, err := query(ctx, s, t)
	if err != nil || idx == nil {
		return empty, err
	}
	return idx.Clone(), nil
}

// UserModels returns the 3D models visible to owner.
func (s *Service) UserModels(ctx context.Context, owner string) ([]string, error) {
	c, err := s.UserCollection(ctx, owner)
	return c.Models, err
}

// UserPanoramas returns the panoramas visible to owner.
func (s *Service) UserPanoramas(ctx context.Context, owner string) ([]string, error) {
	c, err := s.UserCollection(ctx, owner)
	return c.Panoramas, err
}

// UserMedia returns the media files visible to owner.
func (s *Service) UserMedia(ctx context.Context, owner string) ([]string, error) {
	c, err := s.UserCollection(ctx, owner)
	return c.Media, err
}

// knownOwner reports whether owner has a user record. Collections are only
// tracked for known users so arbitrary request parameters cannot create
// namespaces.
//
// While the user list cannot be loaded, an owner with a directory under the
// collections root is still treated as known so collections stay
// independent of the users namespace.
func (s *Service) knownOwner(ctx context.Context, owner string) (bool, error) {
	if !validOwner(owner) {
		return false, nil
	}
	_, ok, err := s.User(ctx, owner)
	if err == nil || !IsScanError(err) {
		return ok, err
	}
	info, statErr := s.fsmgr.Stat(filepath.Join(s.opts.CollectionsDir, owner))
	if statErr != nil || !info.IsDir() {
		return false, nil
	}
	s.logger.Warn("user list unavailable, resolving owner from collections", "owner", owner, "error", err)
	return true, nil
}
