package remote

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrUnavailable      = errors.New("remote store unavailable")
	ErrPermissionDenied = errors.New("permission denied")
)

// IsUnavailable reports whether err means the store could not be reached, as
// opposed to the store rejecting the request.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

type serverTimestamp struct{}

func (serverTimestamp) String() string { return "serverTimestamp()" }

// ServerTimestamp is a payload placeholder the store replaces with its own clock.
var ServerTimestamp any = serverTimestamp{}

// Op is a predicate operator. Only equality is needed by the segment queries.
type Op string

const OpEqual Op = "=="

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	Limit      int
}

// Where returns a copy of q with an equality predicate added.
func (q Query) Where(field string, value any) Query {
	next := q
	next.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: OpEqual, Value: value})
	return next
}

func (q Query) String() string {
	return fmt.Sprintf("%s%v", q.Collection, q.Filters)
}

// Document is one stored record. Data uses the documents' camelCase field names.
type Document struct {
	ID   string
	Data map[string]any
}

// Unsubscribe stops a live subscription. Calling it more than once is harmless.
type Unsubscribe func() error

// Store is the authoritative remote document store.
type Store interface {
	Query(ctx context.Context, q Query) ([]Document, error)
	// Subscribe delivers the full result set of q on every change until the
	// returned Unsubscribe is called or ctx ends.
	Subscribe(ctx context.Context, q Query, callback func([]Document, error)) (Unsubscribe, error)
	// Create writes payload under id, replacing any existing document. An empty
	// id asks the store to generate one.
	Create(ctx context.Context, collection, id string, payload map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, payload map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}
