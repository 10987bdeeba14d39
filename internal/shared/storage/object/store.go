package object

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"
)

// ErrObjectNotFound is returned when a key is absent from the store.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object as reported by a listing.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Page is one page of a listing. An empty NextToken means the listing is exhausted.
type Page struct {
	Objects   []ObjectInfo
	NextToken string
}

// Lister pages through the keys held by a store.
type Lister interface {
	// ListPage returns the page that starts after token; "" starts from the beginning.
	ListPage(ctx context.Context, token string) (Page, error)
}

// ObjectStore defines the contract for saving, signing, listing and removing binary objects.
type ObjectStore interface {
	// Put uploads r under key. Public objects are readable through PublicURL.
	Put(ctx context.Context, key, contentType string, r io.Reader, public bool) (sizeBytes int64, err error)
	// SignURL returns a time-limited GET URL. It fails with ErrObjectNotFound when key is absent.
	SignURL(ctx context.Context, key string, validity time.Duration) (string, error)
	// PublicURL returns the permanent URL of a public object.
	PublicURL(key string) string
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Lister
}

// Objects lazily walks every object in the store, fetching the next page only
// once the previous one has been consumed. A page error is yielded once and ends
// the sequence. Each call starts a fresh listing.
func Objects(ctx context.Context, store Lister) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		token := ""
		for {
			if err := ctx.Err(); err != nil {
				yield(ObjectInfo{}, err)
				return
			}
			page, err := store.ListPage(ctx, token)
			if err != nil {
				yield(ObjectInfo{}, err)
				return
			}
			for _, obj := range page.Objects {
				if !yield(obj, nil) {
					return
				}
			}
			if page.NextToken == "" || page.NextToken == token {
				return
			}
			token = page.NextToken
		}
	}
}
