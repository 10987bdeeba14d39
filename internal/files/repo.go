package files

import (
	"context"
	"time"
)

// FilesRepo defines persistence operations for file records.
type FilesRepo interface {
	Create(ctx context.Context, f File) (File, error)
	GetByID(ctx context.Context, userID string, id int64) (File, error)
	FindByKey(ctx context.Context, key string) (File, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]File, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	// ListSignedExpiringBefore returns signed files with expiry at or before
	// threshold, ordered by expiry then id.
	ListSignedExpiringBefore(ctx context.Context, threshold time.Time, limit, offset int) ([]File, error)
	// UpdateURLAndExpiry replaces url and expiry unless the stored expiry is
	// already at or past expiry. It returns the number of rows changed.
	UpdateURLAndExpiry(ctx context.Context, id int64, url string, expiry time.Time) (int64, error)
	Delete(ctx context.Context, userID string, id int64) error
}
