package query

import (
	"context"
	"time"
)

type Status int

const (
	// StatusPending means no fetch has succeeded or failed yet.
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// State is a read-only view of a query's cache entry.
type State[T any] struct {
	Data       T
	Err        error
	Status     Status
	IsFetching bool
	IsStale    bool
	UpdatedAt  time.Time
}

// IsLoading reports a first fetch in progress.
func (s State[T]) IsLoading() bool {
	return s.Status == StatusPending && s.IsFetching
}

type queryConfig struct {
	staleTime   time.Duration
	retry       int
	enabled     bool
	shouldRetry func(error) bool
}

type QueryOption func(*queryConfig)

func WithStaleTime(d time.Duration) QueryOption {
	return func(c *queryConfig) { c.staleTime = d }
}

// WithRetry sets the number of extra attempts after a failed fetch.
func WithRetry(n int) QueryOption {
	return func(c *queryConfig) {
		if n < 0 {
			n = 0
		}
		c.retry = n
	}
}

// WithEnabled(false) stops Get from fetching; it only returns cached data.
func WithEnabled(enabled bool) QueryOption {
	return func(c *queryConfig) { c.enabled = enabled }
}

// WithShouldRetry limits retries to errors for which fn reports true.
func WithShouldRetry(fn func(error) bool) QueryOption {
	return func(c *queryConfig) { c.shouldRetry = fn }
}

// Query binds a key to the function that fetches its value.
type Query[T any] struct {
	client *Client
	key    Key
	fn     func(context.Context) (T, error)
	cfg    queryConfig
}

func NewQuery[T any](c *Client, key Key, fn func(context.Context) (T, error), opts ...QueryOption) *Query[T] {
	cfg := queryConfig{
		staleTime: c.opts.StaleTime,
		retry:     c.opts.Retry,
		enabled:   true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Query[T]{client: c, key: append(Key(nil), key...), fn: fn, cfg: cfg}
}

func (q *Query[T]) Key() Key {
	return q.key
}

// Get returns the cached value while it is fresh and fetches otherwise.
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	snap := q.client.snapshot(q.key, q.cfg.staleTime)
	if !snap.stale && snap.err == nil {
		return valueOf[T](snap.value), nil
	}
	if !q.cfg.enabled {
		return valueOf[T](snap.value), snap.err
	}
	return q.load(ctx, false)
}

// Refetch fetches regardless of freshness. It never joins a fetch that
// started before it, and the result of any such fetch is discarded.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	return q.load(ctx, true)
}

func (q *Query[T]) load(ctx context.Context, force bool) (T, error) {
	v, err := q.client.fetch(ctx, q.key, force, q.cfg.retry, q.cfg.shouldRetry, func(ctx context.Context) (any, error) {
		return q.fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return valueOf[T](v), nil
}

func (q *Query[T]) State() State[T] {
	snap := q.client.snapshot(q.key, q.cfg.staleTime)
	s := State[T]{
		Data:       valueOf[T](snap.value),
		Err:        snap.err,
		IsFetching: snap.fetching,
		IsStale:    snap.stale,
		UpdatedAt:  snap.updatedAt,
	}
	switch {
	case snap.err != nil:
		s.Status = StatusError
	case snap.hasData:
		s.Status = StatusSuccess
	}
	return s
}

func valueOf[T any](v any) T {
	t, _ := v.(T)
	return t
}
