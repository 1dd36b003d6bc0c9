// Package memory provides in-process implementations of the domain
// repositories, used in development and tests when no database is configured.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/agrotrack/plotmanager/internal/domain"
)

// Store holds every record behind one lock, so multi-record operations are atomic.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	profiles map[string]*domain.Profile // keyed by user id
	plots    map[string]*domain.Plot
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    map[string]*domain.User{},
		profiles: map[string]*domain.Profile{},
		plots:    map[string]*domain.Plot{},
		now:      time.Now,
	}
}

// Users returns the user repository view
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Profiles returns the profile repository view
func (s *Store) Profiles() *ProfileRepository { return &ProfileRepository{s: s} }

// Plots returns the plot repository view
func (s *Store) Plots() *PlotRepository { return &PlotRepository{s: s} }

// Ping always succeeds; it lets the store stand in for a database health check
func (s *Store) Ping(context.Context) error { return nil }

type UserRepository struct{ s *Store }

func (r *UserRepository) CreateWithProfile(_ context.Context, user *domain.User, profile *domain.Profile) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUniqueLocked(user.Username, user.Email, ""); err != nil {
		return err
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	profile.UserID = user.ID
	profile.CreatedAt, profile.UpdatedAt = now, now

	s.users[user.ID] = cloneUser(user)
	p := *profile
	s.profiles[user.ID] = &p
	return nil
}

func (s *Store) checkUniqueLocked(username, email, excludeID string) error {
	for id, u := range s.users {
		if id == excludeID {
			continue
		}
		if u.Username == username {
			return &domain.DuplicateError{Field: "username"}
		}
		if u.Email == email {
			return &domain.DuplicateError{Field: "email"}
		}
	}
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok || u.Deleted {
		return nil, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Username == username && !u.Deleted {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *UserRepository) ExistsUsername(_ context.Context, username, excludeID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, u := range r.s.users {
		if id != excludeID && u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepository) ExistsEmail(_ context.Context, email, excludeID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, u := range r.s.users {
		if id != excludeID && u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepository) List(_ context.Context) ([]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		if !u.Deleted {
			out = append(out, cloneUser(u))
		}
	}
	slices.SortFunc(out, func(a, b *domain.User) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r *UserRepository) Update(_ context.Context, user *domain.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[user.ID]
	if !ok || cur.Deleted {
		return domain.ErrNotFound
	}
	if err := s.checkUniqueLocked(user.Username, user.Email, user.ID); err != nil {
		return err
	}
	user.CreatedAt = cur.CreatedAt
	user.UpdatedAt = s.now()
	user.Deleted = false
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepository) SoftDelete(_ context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.Deleted {
		return domain.ErrNotFound
	}
	now := s.now()
	u.Deleted = true
	u.UpdatedAt = now
	if p, ok := s.profiles[id]; ok {
		p.Deleted = true
		p.UpdatedAt = now
	}
	return nil
}

type ProfileRepository struct{ s *Store }

func (r *ProfileRepository) GetByUserID(_ context.Context, userID string) (*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[userID]
	if !ok || u.Deleted {
		return nil, domain.ErrNotFound
	}
	p, ok := r.s.profiles[userID]
	if !ok || p.Deleted {
		return nil, domain.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *ProfileRepository) List(_ context.Context) ([]*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*domain.Profile{}
	for userID, p := range r.s.profiles {
		if u, ok := r.s.users[userID]; !ok || u.Deleted || p.Deleted {
			continue
		}
		c := *p
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *domain.Profile) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r *ProfileRepository) Update(_ context.Context, profile *domain.Profile) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.profiles[profile.UserID]
	if !ok || cur.Deleted || cur.ID != profile.ID {
		return domain.ErrNotFound
	}
	profile.CreatedAt = cur.CreatedAt
	profile.UpdatedAt = s.now()
	profile.Deleted = false
	p := *profile
	s.profiles[profile.UserID] = &p
	return nil
}

type PlotRepository struct{ s *Store }

func (r *PlotRepository) Create(_ context.Context, plot *domain.Plot) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	plot.CreatedAt, plot.UpdatedAt = now, now
	s.plots[plot.ID] = clonePlot(plot)
	return nil
}

func (r *PlotRepository) GetByID(_ context.Context, id string) (*domain.Plot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.plots[id]
	if !ok || p.Deleted {
		return nil, domain.ErrNotFound
	}
	return r.s.withOwnerLocked(clonePlot(p)), nil
}

func (r *PlotRepository) List(_ context.Context) ([]*domain.Plot, error) {
	return r.filter(func(*domain.Plot) bool { return true }), nil
}

func (r *PlotRepository) ListByOwner(_ context.Context, ownerID string) ([]*domain.Plot, error) {
	return r.filter(func(p *domain.Plot) bool { return p.OwnerID == ownerID }), nil
}

func (r *PlotRepository) filter(keep func(*domain.Plot) bool) []*domain.Plot {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*domain.Plot{}
	for _, p := range r.s.plots {
		if !p.Deleted && keep(p) {
			out = append(out, r.s.withOwnerLocked(clonePlot(p)))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Plot) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (r *PlotRepository) Update(_ context.Context, plot *domain.Plot) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.plots[plot.ID]
	if !ok || cur.Deleted {
		return domain.ErrNotFound
	}
	plot.OwnerID = cur.OwnerID
	plot.CreatedAt = cur.CreatedAt
	plot.UpdatedAt = s.now()
	plot.Deleted = false
	s.plots[plot.ID] = clonePlot(plot)
	return nil
}

func (r *PlotRepository) SoftDelete(_ context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plots[id]
	if !ok || p.Deleted {
		return domain.ErrNotFound
	}
	p.Deleted = true
	p.UpdatedAt = s.now()
	return nil
}

// withOwnerLocked attaches the owner summary, including for deleted owners
func (s *Store) withOwnerLocked(p *domain.Plot) *domain.Plot {
	if u, ok := s.users[p.OwnerID]; ok {
		p.Owner = domain.OwnerOf(u)
	}
	return p
}

func cloneUser(u *domain.User) *domain.User {
	out := *u
	out.EstablishmentLocation = clonePtr(u.EstablishmentLocation)
	out.EstablishmentLat = clonePtr(u.EstablishmentLat)
	out.EstablishmentLng = clonePtr(u.EstablishmentLng)
	return &out
}

func clonePlot(p *domain.Plot) *domain.Plot {
	out := *p
	out.Owner = nil
	out.LotCost = clonePtr(p.LotCost)
	out.ActualHarvestDate = clonePtr(p.ActualHarvestDate)
	out.DamageDescription = clonePtr(p.DamageDescription)
	out.Pests = clonePtr(p.Pests)
	out.Humidity = clonePtr(p.Humidity)
	return &out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

var (
	_ domain.UserRepository    = (*UserRepository)(nil)
	_ domain.ProfileRepository = (*ProfileRepository)(nil)
	_ domain.PlotRepository    = (*PlotRepository)(nil)
)
