package maat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"maat-go/internal/model"
)

// UserStore loads the persisted user records. Maat treats them as read-only.
type UserStore interface {
	LoadUsers(ctx context.Context) ([]model.UserRecord, error)
}

type userSnapshot struct {
	users   []model.UserRecord // sorted by username
	byName  map[string]int
	builtAt time.Time
}

func (s *Service) buildUsers(ctx context.Context) (*userSnapshot, error) {
	records, err := s.users.LoadUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}

	snap := &userSnapshot{
		users:   make([]model.UserRecord, 0, len(records)),
		byName:  make(map[string]int, len(records)),
		builtAt: s.clock.Now(),
	}
	for _, u := range records {
		if u.Username == "" {
			s.logger.Warn("skipping user record without username")
			continue
		}
		snap.users = append(snap.users, u)
	}
	slices.SortFunc(snap.users, func(a, b model.UserRecord) int {
		return strings.Compare(a.Username, b.Username)
	})
	snap.users = slices.CompactFunc(snap.users, func(a, b model.UserRecord) bool {
		return a.Username == b.Username
	})
	for i, u := range snap.users {
		snap.byName[u.Username] = i
	}

	s.logger.Debug("users loaded", "users", len(snap.users))
	return snap, nil
}

// Users returns every user record, sorted by username.
func (s *Service) Users(ctx context.Context) ([]model.UserRecord, error) {
	snap, err := query(ctx, s, s.userRecords)
	if err != nil || snap == nil {
		return []model.UserRecord{}, err
	}
	out := make([]model.UserRecord, len(snap.users))
	for i, u := range snap.users {
		out[i] = cloneUser(u)
	}
	return out, nil
}

// User looks up one user record by username.
func (s *Service) User(ctx context.Context, username string) (model.UserRecord, bool, error) {
	snap, err := query(ctx, s, s.userRecords)
	if err != nil || snap == nil {
		return model.UserRecord{}, false, err
	}
	i, ok := snap.byName[username]
	if !ok {
		return model.UserRecord{}, false, nil
	}
	return cloneUser(snap.users[i]), true, nil
}

func cloneUser(u model.UserRecord) model.UserRecord {
	if u.Extra != nil {
		u.Extra = cloneValue(u.Extra).(map[string]any)
	}
	return u
}

// cloneValue deep-copies the maps and slices of a decoded JSON value.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
