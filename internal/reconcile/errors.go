package reconcile

import "errors"

var (
	// ErrTransientRemote marks a single-item failure talking to the object or
	// record store. The item is retried naturally on the next run.
	ErrTransientRemote = errors.New("transient remote failure")
	// ErrRecordInconsistency marks a record whose object no longer exists.
	ErrRecordInconsistency = errors.New("record points at a missing object")
	// ErrInvalidWindow is returned when a refreshed expiry would still fall
	// inside the lookahead window.
	ErrInvalidWindow = errors.New("signed url validity must exceed refresh lookahead")
)
