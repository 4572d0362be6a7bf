package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process store with the same semantics as
// Repository. It backs STORE_DRIVER=memory and the service tests.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[uuid.UUID]*User),
		now:   time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, u *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Registration number wins when both collide, independent of map order.
	for _, existing := range r.users {
		if existing.NumeroRegistro == u.NumeroRegistro {
			return nil, ErrDuplicateRegistrationNumber
		}
	}
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return nil, ErrDuplicateEmail
		}
	}

	stored := *u
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := r.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.ResetToken = nil
	stored.ResetExpires = nil
	r.users[stored.ID] = &stored

	return clone(&stored), nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepository) GetByRegistrationNumber(_ context.Context, numeroRegistro string) (*User, error) {
	return r.find(func(u *User) bool { return u.NumeroRegistro == numeroRegistro })
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	return r.find(func(u *User) bool { return u.Email == email })
}

func (r *MemoryRepository) GetByResetToken(_ context.Context, tokenHash string, now time.Time) (*User, error) {
	return r.find(func(u *User) bool {
		return u.ResetToken != nil && *u.ResetToken == tokenHash && u.HasPendingReset(now)
	})
}

func (r *MemoryRepository) find(match func(*User) bool) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetToken = nil
	u.ResetExpires = nil
	u.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryRepository) SetResetToken(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	expires := expiresAt.UTC()
	u.ResetToken = &tokenHash
	u.ResetExpires = &expires
	u.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryRepository) ConsumeResetToken(_ context.Context, userID uuid.UUID, tokenHash, passwordHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok || u.ResetToken == nil || *u.ResetToken != tokenHash || !u.HasPendingReset(now) {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetToken = nil
	u.ResetExpires = nil
	u.UpdatedAt = now.UTC()
	return nil
}

func (r *MemoryRepository) ClearExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, u := range r.users {
		if u.ResetExpires != nil && !now.Before(*u.ResetExpires) {
			u.ResetToken = nil
			u.ResetExpires = nil
			n++
		}
	}
	return n, nil
}

func clone(u *User) *User {
	c := *u
	if u.ResetToken != nil {
		t := *u.ResetToken
		c.ResetToken = &t
	}
	if u.ResetExpires != nil {
		e := *u.ResetExpires
		c.ResetExpires = &e
	}
	return &c
}
