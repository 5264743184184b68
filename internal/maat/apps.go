package maat

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"maat-go/internal/model"
)

const (
	appManifest = "app.webmanifest"
	appIcon     = "appicon.png"
	appDataDir  = "data"
)

type appSnapshot struct {
	apps    []model.AppEntry // sorted by ID
	digest  uint64
	builtAt time.Time
}

func (s *Service) buildApps(ctx context.Context) (*appSnapshot, error) {
	files, err := s.fsmgr.Glob(ctx, s.opts.WebappsDir, "*/"+appManifest, ScanOptions{
		FollowSymlinks: s.opts.FollowSymlinks,
		OnlyFiles:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("scanning web-apps: %w", err)
	}

	snap := &appSnapshot{
		apps:    make([]model.AppEntry, 0, len(files)),
		builtAt: s.clock.Now(),
	}
	for _, f := range files {
		id := path.Dir(f)
		dir := filepath.Join(s.opts.WebappsDir, id)

		app := model.AppEntry{ID: id}
		if info, err := s.fsmgr.Stat(filepath.Join(dir, appIcon)); err == nil && !info.IsDir() {
			app.HasIcon = true
		}
		if info, err := s.fsmgr.Stat(filepath.Join(dir, appDataDir)); err == nil && info.IsDir() {
			app.HasData = true
		}
		snap.apps = append(snap.apps, app)
	}

	slices.SortFunc(snap.apps, func(a, b model.AppEntry) int { return strings.Compare(a.ID, b.ID) })
	snap.digest = appsDigest(snap.apps)
	return snap, nil
}

// Apps returns every web-app, sorted by ID.
func (s *Service) Apps(ctx context.Context) ([]model.AppEntry, error) {
	snap, err := query(ctx, s, s.apps)
	if err != nil || snap == nil {
		return []model.AppEntry{}, err
	}
	return slices.Clone(snap.apps), nil
}

// App looks up one web-app by ID.
func (s *Service) App(ctx context.Context, id string) (model.AppEntry, bool, error) {
	snap, err := query(ctx, s, s.apps)
	if err != nil || snap == nil {
		return model.AppEntry{}, false, err
	}
	i, found := slices.BinarySearchFunc(snap.apps, id, func(a model.AppEntry, id string) int {
		return strings.Compare(a.ID, id)
	})
	if !found {
		return model.AppEntry{}, false, nil
	}
	return snap.apps[i], true, nil
}
