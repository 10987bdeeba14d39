// Package batch runs an operation over a stream of items with bounded
// concurrency, recording one outcome per item.
package batch

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is used when a caller passes a non-positive limit.
const DefaultLimit = 10

// Outcome is the result of applying the operation to one item.
type Outcome[T any] struct {
	Item     T
	Err      error
	Duration time.Duration
}

// OK reports whether the operation succeeded.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Summary aggregates a run.
type Summary struct {
	Started   int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// PanicError wraps a value recovered from an operation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Run applies fn to every item yielded by items with at most limit calls in
// flight. Items are pulled from the sequence only as slots free up. A failing
// item never stops the run; report, when non-nil, is called once per item and
// never concurrently.
//
// A source error or cancellation of ctx stops pulling new items. Operations
// already started finish on a context that is not cancelled with ctx, and the
// source or context error is returned together with the summary.
func Run[T any](ctx context.Context, limit int, items iter.Seq2[T, error], fn func(context.Context, T) error, report func(Outcome[T])) (Summary, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	opCtx := context.WithoutCancel(ctx)
	start := time.Now()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		summary Summary
		stopErr error
	)
	g.SetLimit(limit)

	record := func(o Outcome[T]) {
		mu.Lock()
		defer mu.Unlock()
		if o.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
		if report != nil {
			report(o)
		}
	}

	for item, err := range items {
		if err != nil {
			stopErr = err
			break
		}
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		summary.Started++
		g.Go(func() error {
			began := time.Now()
			opErr := call(opCtx, fn, item)
			record(Outcome[T]{Item: item, Err: opErr, Duration: time.Since(began)})
			return nil
		})
	}
	_ = g.Wait()

	summary.Elapsed = time.Since(start)
	return summary, stopErr
}

// RunSlice runs fn over a slice and returns every outcome in completion order.
func RunSlice[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) error) ([]Outcome[T], Summary, error) {
	outcomes := make([]Outcome[T], 0, len(items))
	summary, err := Run(ctx, limit, Seq(slices.Values(items)), fn, func(o Outcome[T]) {
		outcomes = append(outcomes, o)
	})
	return outcomes, summary, err
}

// Seq adapts an infallible sequence for Run.
func Seq[T any](items iter.Seq[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

func call[T any](ctx context.Context, fn func(context.Context, T) error, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx, item)
}
