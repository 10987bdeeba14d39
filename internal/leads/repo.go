package leads

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no lead matches.
var ErrNotFound = errors.New("lead not found")

// LeadsRepo defines persistence operations for pending registrations.
type LeadsRepo interface {
	Create(ctx context.Context, l Lead) (Lead, error)
	FindByToken(ctx context.Context, token string) (Lead, error)
	Delete(ctx context.Context, id int64) error
	// DeleteOlderThan removes leads created strictly before threshold and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error)
}
