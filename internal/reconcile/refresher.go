package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"filevault-backend/internal/batch"
	"filevault-backend/internal/files"
	"filevault-backend/internal/shared/storage/object"
	"filevault-backend/internal/shared/telemetry"
)

// RefreshJobName identifies the signed URL refresher.
const RefreshJobName = "signed_url_refresh"

const (
	DefaultValidity  = 24 * time.Hour
	DefaultLookahead = 2 * time.Hour
)

// ExpiringFiles is the slice of the file record store the refresher needs.
type ExpiringFiles interface {
	ListSignedExpiringBefore(ctx context.Context, threshold time.Time, limit, offset int) ([]files.File, error)
	UpdateURLAndExpiry(ctx context.Context, id int64, url string, expiry time.Time) (int64, error)
}

// URLSigner produces time-limited URLs.
type URLSigner interface {
	SignURL(ctx context.Context, key string, validity time.Duration) (string, error)
}

// Refresher re-signs URLs of signed files that expire within Lookahead.
type Refresher struct {
	Files       ExpiringFiles
	Signer      URLSigner
	Validity    time.Duration
	Lookahead   time.Duration
	PageSize    int
	Concurrency int
	Now         func() time.Time
}

type refreshResult int

const (
	refreshFailed refreshResult = iota
	refreshDone
	refreshNotAdvanced
	refreshInconsistent
)

type refreshItem struct {
	file   files.File
	result refreshResult
}

// Name implements Job.
func (r *Refresher) Name() string { return RefreshJobName }

// Run walks every signed file expiring before now+Lookahead and replaces its
// URL. The threshold is fixed for the whole run.
func (r *Refresher) Run(ctx context.Context) Report {
	now := clock(r.Now)
	rep := begin(RefreshJobName, now.now())

	validity, lookahead := r.window()
	if validity <= lookahead {
		rep.Err = fmt.Errorf("%w: validity=%s lookahead=%s", ErrInvalidWindow, validity, lookahead)
		return finish(rep, now.now())
	}
	threshold := rep.StartedAt.Add(lookahead)

	pageSize := r.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		page, err := r.Files.ListSignedExpiringBefore(ctx, threshold, pageSize, offset)
		if err != nil {
			rep.Err = fmt.Errorf("list expiring files offset=%d: %w", offset, err)
			break
		}
		if len(page) == 0 {
			break
		}

		items := make([]*refreshItem, len(page))
		for i := range page {
			items[i] = &refreshItem{file: page[i]}
		}

		stillMatching := 0
		_, runErr := batch.Run(ctx, r.Concurrency, batch.Seq(slices.Values(items)), r.refresh, func(o batch.Outcome[*refreshItem]) {
			rep.Scanned++
			switch o.Item.result {
			case refreshDone:
				rep.Refreshed++
			case refreshNotAdvanced:
				rep.Skipped++
			case refreshInconsistent:
				// Dangling records are reported, not repaired.
				rep.Inconsistent++
				stillMatching++
				telemetry.Warn(RefreshJobName+".record_inconsistent", map[string]any{
					"run_id":  rep.RunID,
					"file_id": o.Item.file.ID,
					"user_id": o.Item.file.UserID,
					"key":     o.Item.file.Key,
				})
			default:
				rep.Failed++
				stillMatching++
				itemFailed(RefreshJobName, map[string]any{
					"run_id":  rep.RunID,
					"file_id": o.Item.file.ID,
					"key":     o.Item.file.Key,
				}, o.Err)
			}
		})
		if runErr != nil {
			rep.Err = runErr
			break
		}

		// Refreshed rows drop out of the filter; only the rest shift the window.
		offset += stillMatching
		if len(page) < pageSize {
			break
		}
	}

	return finish(rep, now.now())
}

// window returns Validity and Lookahead with zero values defaulted. A
// refreshed row leaves the filter only when validity exceeds lookahead.
func (r *Refresher) window() (time.Duration, time.Duration) {
	validity, lookahead := r.Validity, r.Lookahead
	if validity <= 0 {
		validity = DefaultValidity
	}
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	return validity, lookahead
}

func (r *Refresher) refresh(ctx context.Context, item *refreshItem) error {
	f := item.file
	signedAt := clock(r.Now).now()
	validity, _ := r.window()

	url, err := r.Signer.SignURL(ctx, f.Key, validity)
	if err != nil {
		if errors.Is(err, object.ErrObjectNotFound) {
			item.result = refreshInconsistent
			return fmt.Errorf("%w: file_id=%d key=%s", ErrRecordInconsistency, f.ID, f.Key)
		}
		return fmt.Errorf("%w: sign key=%s: %w", ErrTransientRemote, f.Key, err)
	}

	n, err := r.Files.UpdateURLAndExpiry(ctx, f.ID, url, signedAt.Add(validity).UTC())
	if err != nil {
		return fmt.Errorf("%w: update file_id=%d: %w", ErrTransientRemote, f.ID, err)
	}
	if n == 0 {
		item.result = refreshNotAdvanced
		return nil
	}
	item.result = refreshDone
	return nil
}
