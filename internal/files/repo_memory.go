package files

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of FilesRepo.
type MemoryRepo struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]File
	now    func() time.Time
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[int64]File),
		now:  time.Now,
	}
}

// Create stores a new file and assigns its ID.
func (r *MemoryRepo) Create(ctx context.Context, f File) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data {
		if existing.Key == f.Key {
			return File{}, ErrDuplicateKey
		}
	}
	r.nextID++
	now := r.now().UTC()
	f.ID = r.nextID
	f.CreatedAt = now
	f.UpdatedAt = now
	f.ExpiryTime = copyTime(f.ExpiryTime)
	r.data[f.ID] = f
	return f, nil
}

// GetByID returns a file owned by userID.
func (r *MemoryRepo) GetByID(ctx context.Context, userID string, id int64) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.data[id]
	if !ok || f.UserID != userID {
		return File{}, ErrNotFound
	}
	return clone(f), nil
}

// FindByKey returns the file stored under key.
func (r *MemoryRepo) FindByKey(ctx context.Context, key string) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.data {
		if f.Key == key {
			return clone(f), nil
		}
	}
	return File{}, ErrNotFound
}

// ListByUser returns files for a user, newest first, honoring limit/offset.
func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []File
	r.mu.RLock()
	for _, f := range r.data {
		if f.UserID == userID {
			out = append(out, clone(f))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

// CountByUser returns the number of files owned by userID.
func (r *MemoryRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, f := range r.data {
		if f.UserID == userID {
			n++
		}
	}
	return n, nil
}

// ListSignedExpiringBefore returns signed files expiring at or before threshold.
func (r *MemoryRepo) ListSignedExpiringBefore(ctx context.Context, threshold time.Time, limit, offset int) ([]File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []File
	r.mu.RLock()
	for _, f := range r.data {
		if f.IsSigned && f.ExpiryTime != nil && !f.ExpiryTime.After(threshold) {
			out = append(out, clone(f))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiryTime.Equal(*out[j].ExpiryTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiryTime.Before(*out[j].ExpiryTime)
	})
	return page(out, limit, offset), nil
}

// UpdateURLAndExpiry replaces url and expiry unless that would not advance the expiry.
func (r *MemoryRepo) UpdateURLAndExpiry(ctx context.Context, id int64, url string, expiry time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.data[id]
	if !ok || !f.IsSigned {
		return 0, nil
	}
	if f.ExpiryTime != nil && !f.ExpiryTime.Before(expiry) {
		return 0, nil
	}
	f.URL = url
	f.ExpiryTime = &expiry
	f.UpdatedAt = r.now().UTC()
	r.data[id] = f
	return 1, nil
}

// Delete removes a file owned by userID.
func (r *MemoryRepo) Delete(ctx context.Context, userID string, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.data[id]
	if !ok || f.UserID != userID {
		return ErrNotFound
	}
	delete(r.data, id)
	return nil
}

func page(files []File, limit, offset int) []File {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(files) {
		return []File{}
	}
	end := len(files)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return files[offset:end]
}

func clone(f File) File {
	f.ExpiryTime = copyTime(f.ExpiryTime)
	return f
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ FilesRepo = (*MemoryRepo)(nil)
