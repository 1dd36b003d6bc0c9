package auth

import (
	"context"
	"time"

	"github.com/agrotrack/plotmanager/pkg/cache"
)

// RevocationList records logged-out token ids until the token would have
// expired anyway.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRevocationList keeps revoked ids in process memory. Used when no
// Redis is configured; revocations do not survive a restart.
type MemoryRevocationList struct {
	entries *cache.Cache[struct{}]
	now     func() time.Time
}

func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{entries: cache.New[struct{}](), now: time.Now}
}

// WithClock replaces the time source, for tests.
func (m *MemoryRevocationList) WithClock(now func() time.Time) *MemoryRevocationList {
	m.now = now
	m.entries.WithClock(now)
	return m
}

func (m *MemoryRevocationList) Revoke(_ context.Context, jti string, until time.Time) error {
	ttl := until.Sub(m.now())
	if jti == "" || ttl <= 0 {
		return nil
	}
	m.entries.Set(jti, struct{}{}, ttl)
	return nil
}

func (m *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := m.entries.Get(jti)
	return ok, nil
}

// Purge drops entries whose tokens have expired and returns how many went
func (m *MemoryRevocationList) Purge() int {
	return m.entries.Purge()
}
