package files

import "time"

// File is the record of an uploaded object. Signed files carry a URL that
// stops working at ExpiryTime; public files carry a permanent URL.
type File struct {
	ID         int64
	UserID     string
	Key        string
	URL        string
	IsSigned   bool
	ExpiryTime *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// State is the lifecycle position of a file's URL.
type State string

const (
	StateUnsigned       State = "unsigned"
	StateSignedValid    State = "signed_valid"
	StateSignedExpiring State = "signed_expiring"
)

// StateAt classifies f at now. A signed URL is expiring once its expiry
// falls at or before now+lookahead, which includes already expired URLs.
func StateAt(f File, now time.Time, lookahead time.Duration) State {
	if !f.IsSigned {
		return StateUnsigned
	}
	if f.ExpiryTime == nil || !f.ExpiryTime.After(now.Add(lookahead)) {
		return StateSignedExpiring
	}
	return StateSignedValid
}
