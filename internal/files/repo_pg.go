package files

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const fileColumns = `id, user_id, key, url, is_signed, expiry_time, created_at, updated_at`

// PGRepo implements FilesRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (File, error) {
	var f File
	var expiry sql.NullTime
	if err := row.Scan(
		&f.ID,
		&f.UserID,
		&f.Key,
		&f.URL,
		&f.IsSigned,
		&expiry,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return File{}, err
	}
	if expiry.Valid {
		t := expiry.Time
		f.ExpiryTime = &t
	}
	return f, nil
}

// Create inserts a new file record and returns it with its generated fields.
func (r *PGRepo) Create(ctx context.Context, f File) (File, error) {
	const query = `
INSERT INTO files (user_id, key, url, is_signed, expiry_time)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + fileColumns

	var expiry sql.NullTime
	if f.ExpiryTime != nil {
		expiry = sql.NullTime{Time: *f.ExpiryTime, Valid: true}
	}
	created, err := scanFile(r.DB.QueryRowContext(ctx, query, f.UserID, f.Key, f.URL, f.IsSigned, expiry))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return File{}, ErrDuplicateKey
		}
		return File{}, err
	}
	return created, nil
}

// GetByID fetches a file owned by userID.
func (r *PGRepo) GetByID(ctx context.Context, userID string, id int64) (File, error) {
	const query = `
SELECT ` + fileColumns + `
FROM files
WHERE id = $1 AND user_id = $2`
	f, err := scanFile(r.DB.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return File{}, ErrNotFound
		}
		return File{}, err
	}
	return f, nil
}

// FindByKey fetches a file by its storage key.
func (r *PGRepo) FindByKey(ctx context.Context, key string) (File, error) {
	const query = `
SELECT ` + fileColumns + `
FROM files
WHERE key = $1`
	f, err := scanFile(r.DB.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return File{}, ErrNotFound
		}
		return File{}, err
	}
	return f, nil
}

// ListByUser lists files ordered newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]File, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT ` + fileColumns + `
FROM files
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`
	return r.list(ctx, query, userID, limit, offset)
}

// CountByUser returns the number of files owned by userID.
func (r *PGRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM files WHERE user_id = $1`
	var n int
	if err := r.DB.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListSignedExpiringBefore returns one page of signed files due for refresh.
func (r *PGRepo) ListSignedExpiringBefore(ctx context.Context, threshold time.Time, limit, offset int) ([]File, error) {
	const query = `
SELECT ` + fileColumns + `
FROM files
WHERE is_signed AND expiry_time <= $1
ORDER BY expiry_time, id
LIMIT $2 OFFSET $3`
	return r.list(ctx, query, threshold, limit, offset)
}

// UpdateURLAndExpiry stores a freshly signed url. The guard on expiry_time
// keeps a slower concurrent writer from moving the expiry backwards.
func (r *PGRepo) UpdateURLAndExpiry(ctx context.Context, id int64, url string, expiry time.Time) (int64, error) {
	const query = `
UPDATE files
SET url = $1, expiry_time = $2, updated_at = now()
WHERE id = $3 AND is_signed AND (expiry_time IS NULL OR expiry_time < $2)`
	res, err := r.DB.ExecContext(ctx, query, url, expiry, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes a file record owned by userID.
func (r *PGRepo) Delete(ctx context.Context, userID string, id int64) error {
	const query = `DELETE FROM files WHERE id = $1 AND user_id = $2`
	res, err := r.DB.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) list(ctx context.Context, query string, args ...any) ([]File, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

var _ FilesRepo = (*PGRepo)(nil)
