package testutil

import (
	"context"
	"slices"
	"sync"

	"maat-go/internal/model"
)

// MemoryUserStore is an in-memory maat.UserStore.
type MemoryUserStore struct {
	mu    sync.Mutex
	users []model.UserRecord
	err   error
	loads int
}

// NewMemoryUserStore creates a store holding one record per username.
func NewMemoryUserStore(usernames ...string) *MemoryUserStore {
	s := &MemoryUserStore{}
	for _, name := range usernames {
		s.users = append(s.users, model.UserRecord{Username: name})
	}
	return s
}

func (s *MemoryUserStore) LoadUsers(ctx context.Context) ([]model.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return slices.Clone(s.users), nil
}

// SetUsers replaces the stored records.
func (s *MemoryUserStore) SetUsers(users ...model.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
}

// SetError makes LoadUsers fail with err until cleared with nil.
func (s *MemoryUserStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Loads returns how many times LoadUsers was called.
func (s *MemoryUserStore) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}
