package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"filevault-backend/internal/shared/storage/object"
)

// fakeBucket is an in-memory object store with deterministic paging.
type fakeBucket struct {
	mu        sync.Mutex
	objects   map[string]time.Time
	pageSize  int
	signCalls int
	signErr   map[string]error
	deleteErr map[string]error
	listErrAt string
	deleted   []string
	afterList func()
}

func newFakeBucket(modified time.Time, keys ...string) *fakeBucket {
	b := &fakeBucket{
		objects:   map[string]time.Time{},
		pageSize:  2,
		signErr:   map[string]error{},
		deleteErr: map[string]error{},
	}
	for _, k := range keys {
		b.objects[k] = modified
	}
	return b
}

func (b *fakeBucket) SignURL(ctx context.Context, key string, validity time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signCalls++
	if err := b.signErr[key]; err != nil {
		return "", err
	}
	if _, ok := b.objects[key]; !ok {
		return "", object.ErrObjectNotFound
	}
	return fmt.Sprintf("https://bucket/%s?sig=%d", key, b.signCalls), nil
}

func (b *fakeBucket) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.deleteErr[key]; err != nil {
		return err
	}
	b.deleted = append(b.deleted, key)
	delete(b.objects, key)
	return nil
}

func (b *fakeBucket) ListPage(ctx context.Context, token string) (object.Page, error) {
	b.mu.Lock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if b.listErrAt != "" && token == b.listErrAt {
		b.mu.Unlock()
		return object.Page{}, errors.New("listing unavailable")
	}

	var page object.Page
	for _, k := range keys {
		if len(page.Objects) == b.pageSize {
			page.NextToken = page.Objects[len(page.Objects)-1].Key
			break
		}
		page.Objects = append(page.Objects, object.ObjectInfo{Key: k, LastModified: b.objects[k]})
	}
	hook := b.afterList
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	return page, nil
}

func (b *fakeBucket) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}
