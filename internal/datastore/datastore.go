package datastore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict indicates the attempted write would violate a uniqueness
	// constraint.
	ErrConflict = errors.New("document conflict")
)

// Collection names used by the core.
const (
	Users         = "users"
	Videos        = "videos"
	Tweets        = "tweets"
	Likes         = "likes"
	Subscriptions = "subscriptions"
)

// uniqueIndexes declares the uniqueness constraints every implementation
// must enforce: one live account per username and per email, one edge per
// (channel, subscriber) pair.
var uniqueIndexes = map[string][][]string{
	Users:         {{"username"}, {"email"}},
	Subscriptions: {{"channel", "subscriber"}},
}

// Document is a stored record. The "_id" field holds the document id as an
// opaque string.
type Document = map[string]any

// Filter selects documents by field equality. Multiple entries are combined
// with AND. Wrap a value list in AnyOf for set membership.
type Filter = map[string]any

// AnyOf matches when the document field equals any listed value.
type AnyOf []any

// Fields names the fields written by an update.
type Fields = map[string]any

// FindOptions controls sorting and pagination for Find.
type FindOptions struct {
	SortBy string
	Desc   bool
	Skip   int
	Limit  int
}

// Datastore exposes typed collection access for the named collections plus
// id generation and validation.
type Datastore interface {
	Collection(name string) Collection
	NewID() string
	ValidID(id string) bool
}

// Collection is the per-collection contract: point reads and writes plus the
// generic aggregation primitive. UpdateOne is the atomic conditional update
// the refresh-token rotation relies on: the set is applied only if the
// filter still matches at write time.
type Collection interface {
	FindOne(ctx context.Context, filter Filter) (Document, error)
	FindByID(ctx context.Context, id string) (Document, error)
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error)
	Insert(ctx context.Context, doc Document) (string, error)
	UpdateByID(ctx context.Context, id string, set Fields) (Document, error)
	UpdateOne(ctx context.Context, filter Filter, set Fields) (bool, error)
	DeleteByID(ctx context.Context, id string) error
	Aggregate(ctx context.Context, pipeline []Stage) ([]Document, error)
}
