package service

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository/repositorytest"
)

type stubThrottle struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubThrottle) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

type memoryRevocations struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func newMemoryRevocations() *memoryRevocations {
	return &memoryRevocations{ids: map[string]time.Time{}}
}

func (m *memoryRevocations) Revoke(_ context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = until
	return nil
}

func (m *memoryRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[id]
	return ok, nil
}

// deleteAfterRead soft-deletes victim right after it is read, standing in for
// an admin delete that lands between a service's read and its write.
type deleteAfterRead struct {
	*repositorytest.Accounts
	victim string
}

func (r *deleteAfterRead) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	acc, err := r.Accounts.GetByID(ctx, id)
	if err == nil && id == r.victim {
		_ = r.Accounts.SoftDelete(ctx, id)
	}
	return acc, err
}
