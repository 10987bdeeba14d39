package reconcile

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"filevault-backend/internal/batch"
	"filevault-backend/internal/files"
	"filevault-backend/internal/shared/storage/object"
	"filevault-backend/internal/shared/telemetry"
)

// OrphanJobName identifies the orphan object reconciler.
const OrphanJobName = "orphan_cleanup"

// KeyLookup resolves a storage key to its file record.
type KeyLookup interface {
	FindByKey(ctx context.Context, key string) (files.File, error)
}

// ObjectSweeper lists and deletes stored objects.
type ObjectSweeper interface {
	object.Lister
	Delete(ctx context.Context, key string) error
}

// OrphanReconciler deletes stored objects that no file record references.
// It never deletes records.
type OrphanReconciler struct {
	Files       KeyLookup
	Store       ObjectSweeper
	GracePeriod time.Duration
	Concurrency int
	DryRun      bool
	Now         func() time.Time
}

type orphanDecision int

const (
	orphanFailed orphanDecision = iota
	orphanKept
	orphanDeleted
	orphanTooNew
)

type orphanItem struct {
	obj      object.ObjectInfo
	decision orphanDecision
}

// Name implements Job.
func (o *OrphanReconciler) Name() string { return OrphanJobName }

// Run streams every stored key and removes those without a record. Objects
// modified after the scan started, minus GracePeriod, are left alone since an
// upload may still be about to write its record.
func (o *OrphanReconciler) Run(ctx context.Context) Report {
	now := clock(o.Now)
	rep := begin(OrphanJobName, now.now())
	rep.DryRun = o.DryRun
	cutoff := rep.StartedAt.Add(-o.GracePeriod)

	items := candidates(object.Objects(ctx, o.Store))
	_, err := batch.Run(ctx, o.Concurrency, items, func(ctx context.Context, item *orphanItem) error {
		return o.reconcile(ctx, item, cutoff)
	}, func(out batch.Outcome[*orphanItem]) {
		rep.Scanned++
		switch out.Item.decision {
		case orphanKept:
			rep.Kept++
		case orphanDeleted:
			rep.Deleted++
			telemetry.Info(OrphanJobName+".deleted", map[string]any{
				"run_id":  rep.RunID,
				"key":     out.Item.obj.Key,
				"dry_run": o.DryRun,
			})
		case orphanTooNew:
			rep.Skipped++
		default:
			rep.Failed++
			itemFailed(OrphanJobName, map[string]any{
				"run_id": rep.RunID,
				"key":    out.Item.obj.Key,
			}, out.Err)
		}
	})
	if err != nil {
		rep.Err = fmt.Errorf("list objects: %w", err)
	}

	return finish(rep, now.now())
}

// reconcile looks the key up immediately before deciding, so a record
// created since the listing was fetched keeps its object.
func (o *OrphanReconciler) reconcile(ctx context.Context, item *orphanItem, cutoff time.Time) error {
	if item.obj.LastModified.After(cutoff) {
		item.decision = orphanTooNew
		return nil
	}

	_, err := o.Files.FindByKey(ctx, item.obj.Key)
	switch {
	case err == nil:
		item.decision = orphanKept
		return nil
	case !errors.Is(err, files.ErrNotFound):
		return fmt.Errorf("%w: lookup key=%s: %w", ErrTransientRemote, item.obj.Key, err)
	}

	if !o.DryRun {
		if err := o.Store.Delete(ctx, item.obj.Key); err != nil {
			return fmt.Errorf("%w: delete key=%s: %w", ErrTransientRemote, item.obj.Key, err)
		}
	}
	item.decision = orphanDeleted
	return nil
}

func candidates(objects iter.Seq2[object.ObjectInfo, error]) iter.Seq2[*orphanItem, error] {
	return func(yield func(*orphanItem, error) bool) {
		for obj, err := range objects {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(&orphanItem{obj: obj}, nil) {
				return
			}
		}
	}
}
