package maat

import (
	"context"
	"fmt"

	"maat-go/internal/model"
)

// Stats scans scenes, apps, users and then every user's collection, one
// after another, and aggregates the counts. It is the most expensive query
// and is not meant for hot paths.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	scenes, err := query(ctx, s, s.scenes)
	if err != nil {
		return model.Stats{}, fmt.Errorf("scenes: %w", err)
	}
	apps, err := query(ctx, s, s.apps)
	if err != nil {
		return model.Stats{}, fmt.Errorf("apps: %w", err)
	}
	users, err := query(ctx, s, s.userRecords)
	if err != nil {
		return model.Stats{}, fmt.Errorf("users: %w", err)
	}

	collections := make([]*model.CollectionIndex, 0, len(users.users))
	for _, u := range users.users {
		t, err := s.collectionTracker(u.Username)
		if err != nil {
			s.logger.Warn("skipping collection", "owner", u.Username, "error", err)
			continue
		}
		idx, err := query(ctx, s, t)
		if err != nil {
			if IsScanError(err) {
				// No snapshot yet for this owner; count it as empty.
				continue
			}
			return model.Stats{}, fmt.Errorf("collection %s: %w", u.Username, err)
		}
		collections = append(collections, idx)
	}

	st := aggregateStats(s.opts.Name, scenes, apps, users, collections)
	st.Keywords = st.Keywords.Clone()
	return st, nil
}

// aggregateStats composes counts over already-built snapshots. The keyword
// histogram is the scene snapshot's own map.
func aggregateStats(name string, scenes *sceneSnapshot, apps *appSnapshot, users *userSnapshot, collections []*model.CollectionIndex) model.Stats {
	st := model.Stats{
		Name:        name,
		ScenesTotal: len(scenes.scenes),
		Users:       len(users.users),
		Apps:        len(apps.apps),
		Keywords:    scenes.keywords,
	}
	for _, e := range scenes.scenes {
		if e.Visibility {
			st.ScenesPublic++
		}
	}
	for _, c := range collections {
		st.Models += len(c.Models)
		st.Panoramas += len(c.Panoramas)
		st.Media += len(c.Media)
	}
	return st
}
