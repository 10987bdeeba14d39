package leads

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements LeadsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a lead and returns it with its generated fields.
func (r *PGRepo) Create(ctx context.Context, l Lead) (Lead, error) {
	const query = `
INSERT INTO auth_leads (email, username, password, otp, verification_token)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`

	err := r.DB.QueryRowContext(ctx, query,
		l.Email,
		l.Username,
		l.PasswordHash,
		nullString(l.OTP),
		nullString(l.VerificationToken),
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return Lead{}, err
	}
	return l, nil
}

// FindByToken fetches a lead by its verification token.
func (r *PGRepo) FindByToken(ctx context.Context, token string) (Lead, error) {
	const query = `
SELECT id, email, username, password, otp, verification_token, created_at, updated_at
FROM auth_leads
WHERE verification_token = $1
LIMIT 1`

	var l Lead
	var otp, verificationToken sql.NullString
	err := r.DB.QueryRowContext(ctx, query, token).Scan(
		&l.ID,
		&l.Email,
		&l.Username,
		&l.PasswordHash,
		&otp,
		&verificationToken,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	l.OTP = otp.String
	l.VerificationToken = verificationToken.String
	return l, nil
}

// Delete removes a lead, typically after it was promoted to a user.
func (r *PGRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM auth_leads WHERE id = $1`, id)
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

// DeleteOlderThan removes every lead created before threshold in one statement.
func (r *PGRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM auth_leads WHERE created_at < $1`, threshold)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ LeadsRepo = (*PGRepo)(nil)
