package leads

import "time"

// Lead is a pending registration awaiting OTP verification.
type Lead struct {
	ID                int64
	Email             string
	Username          string
	PasswordHash      string
	OTP               string
	VerificationToken string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
