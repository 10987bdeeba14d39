package leads

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of LeadsRepo.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	data   map[int64]Lead
	now    func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[int64]Lead), now: time.Now}
}

// Create stores a lead. A zero CreatedAt is stamped with the current time.
func (r *MemoryRepo) Create(ctx context.Context, l Lead) (Lead, error) {
	if err := ctx.Err(); err != nil {
		return Lead{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	l.ID = r.nextID
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.now().UTC()
	}
	l.UpdatedAt = l.CreatedAt
	r.data[l.ID] = l
	return l, nil
}

// FindByToken returns the lead with the given verification token.
func (r *MemoryRepo) FindByToken(ctx context.Context, token string) (Lead, error) {
	if err := ctx.Err(); err != nil {
		return Lead{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.data {
		if token != "" && l.VerificationToken == token {
			return l, nil
		}
	}
	return Lead{}, ErrNotFound
}

// Delete removes a lead by ID.
func (r *MemoryRepo) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return ErrNotFound
	}
	delete(r.data, id)
	return nil
}

// DeleteOlderThan removes leads created strictly before threshold.
func (r *MemoryRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, l := range r.data {
		if l.CreatedAt.Before(threshold) {
			delete(r.data, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored leads.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

var _ LeadsRepo = (*MemoryRepo)(nil)
