// Package query is a small client-side cache for asynchronous reads and
// writes. Queries are cached by key with a stale time, concurrent reads of a
// key share one fetch, and mutations report pending state and run hooks.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultStaleTime     = 5 * time.Minute
	DefaultRetry         = 2
	DefaultMutationRetry = 1
)

type Options struct {
	// StaleTime is how long fetched data counts as fresh.
	StaleTime time.Duration
	// Retry is the number of extra attempts after a failed query fetch.
	Retry int
	// MutationRetry is the number of extra attempts after a failed mutation.
	MutationRetry int
	// NewBackOff builds the delay policy between attempts.
	NewBackOff func() backoff.BackOff
	Logger     *slog.Logger
}

// DefaultOptions returns the defaults applied by NewClient.
func DefaultOptions() Options {
	return Options{
		StaleTime:     DefaultStaleTime,
		Retry:         DefaultRetry,
		MutationRetry: DefaultMutationRetry,
		NewBackOff:    defaultBackOff,
	}
}

// defaultBackOff doubles from one second up to thirty.
func defaultBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval: time.Second,
		Multiplier:      2,
		MaxInterval:     30 * time.Second,
	}
}

type entry struct {
	key         Key
	value       any
	hasData     bool
	err         error
	updatedAt   time.Time
	invalidated bool
	fetching    int
}

// Client holds the cache shared by every query and mutation built on it.
// It is safe for concurrent use.
type Client struct {
	mu         sync.Mutex
	entries    map[string]*entry
	generation uint64
	seqs       map[string]uint64
	group      singleflight.Group

	subsMu  sync.Mutex
	subs    map[int]func(Key)
	nextSub int

	opts Options
	now  func() time.Time
	log  *slog.Logger
}

func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.StaleTime < 0 {
		opts.StaleTime = 0
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	if opts.MutationRetry < 0 {
		opts.MutationRetry = 0
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = def.NewBackOff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		entries: make(map[string]*entry),
		seqs:    make(map[string]uint64),
		subs:    make(map[int]func(Key)),
		opts:    opts,
		now:     time.Now,
		log:     opts.Logger,
	}
}

// Subscribe calls fn after every change to the cache or to a mutation's
// pending state, with the affected key. Clear reports a nil key.
func (c *Client) Subscribe(fn func(Key)) (unsubscribe func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Client) notify(key Key) {
	c.subsMu.Lock()
	fns := make([]func(Key), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

// Invalidate marks every entry under prefix stale so the next read fetches.
// Fetches already in flight for those entries no longer store their results.
// It returns the number of entries marked.
func (c *Client) Invalidate(prefix Key) int {
	c.mu.Lock()
	var marked []Key
	for k, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.invalidated = true
			c.seqs[k]++
			marked = append(marked, e.key)
		}
	}
	c.mu.Unlock()

	for _, k := range marked {
		c.notify(k)
	}
	return len(marked)
}

// Clear drops every entry. Fetches in flight when Clear runs do not store
// their results.
func (c *Client) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.seqs = make(map[string]uint64)
	c.generation++
	c.mu.Unlock()

	c.notify(nil)
}

// SetData stores value under key as freshly fetched.
func (c *Client) SetData(key Key, value any) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.value, e.hasData, e.err = value, true, nil
	e.updatedAt = c.now()
	e.invalidated = false
	c.mu.Unlock()

	c.notify(key)
}

// Data returns the cached value for key, fresh or not.
func (c *Client) Data(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		return nil, false
	}
	return e.value, true
}

// Len returns the number of cached entries.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Client) entryLocked(key Key) *entry {
	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[k] = e
	}
	return e
}

type snapshot struct {
	value     any
	hasData   bool
	err       error
	updatedAt time.Time
	stale     bool
	fetching  bool
}

func (c *Client) snapshot(key Key, staleTime time.Duration) snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return snapshot{stale: true}
	}
	return snapshot{
		value:     e.value,
		hasData:   e.hasData,
		err:       e.err,
		updatedAt: e.updatedAt,
		stale:     !e.hasData || e.invalidated || c.now().Sub(e.updatedAt) >= staleTime,
		fetching:  e.fetching > 0,
	}
}

// flight identifies one fetch: the cache generation and the key's fetch
// sequence it started under.
type flight struct {
	key Key
	gen uint64
	seq uint64
}

func (f flight) String() string {
	return fmt.Sprintf("%d:%d:%s", f.gen, f.seq, f.key)
}

// startFlight returns the flight a fetch of key joins. A forced fetch starts
// a new sequence, so it never shares a call that began before it.
func (c *Client) startFlight(key Key, force bool) flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	if force {
		c.seqs[k]++
	}
	return flight{key: key, gen: c.generation, seq: c.seqs[k]}
}

// currentLocked reports whether results of f may still be stored. Clear and
// Invalidate retire earlier flights, as does a later forced fetch.
func (c *Client) currentLocked(f flight) bool {
	return c.generation == f.gen && c.seqs[f.key.String()] == f.seq
}

// beginFetch marks key as fetching and returns its entry, or nil when f was
// retired before the call started.
func (c *Client) beginFetch(f flight) *entry {
	c.mu.Lock()
	if !c.currentLocked(f) {
		c.mu.Unlock()
		return nil
	}
	e := c.entryLocked(f.key)
	e.fetching++
	c.mu.Unlock()

	c.notify(f.key)
	return e
}

// finishFetch stores the result of f when it is still current.
func (c *Client) finishFetch(f flight, e *entry, value any, err error) bool {
	c.mu.Lock()
	if e != nil {
		e.fetching--
	}
	stored := c.currentLocked(f)
	if stored {
		e = c.entryLocked(f.key)
		if err != nil {
			e.err = err
		} else {
			e.value, e.hasData, e.err = value, true, nil
			e.updatedAt = c.now()
			e.invalidated = false
		}
	}
	c.mu.Unlock()

	if stored || e != nil {
		c.notify(f.key)
	}
	return stored
}

// fetch runs fn for key, sharing the call with concurrent fetches of the same
// flight. The fetch itself is not cancelled by ctx; a cancelled caller stops
// waiting and gets ctx's error.
func (c *Client) fetch(ctx context.Context, key Key, force bool, retry int, shouldRetry func(error) bool, fn func(context.Context) (any, error)) (any, error) {
	f := c.startFlight(key, force)
	detached := context.WithoutCancel(ctx)

	ch := c.group.DoChan(f.String(), func() (any, error) {
		e := c.beginFetch(f)
		value, err := c.retry(detached, retry, shouldRetry, fn)
		if !c.finishFetch(f, e, value, err) {
			c.log.Debug("discarding superseded fetch result", "key", key.String())
		}
		return value, err
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// retry calls fn until it succeeds, fails permanently or has been tried
// retry+1 times.
func (c *Client) retry(ctx context.Context, retry int, shouldRetry func(error) bool, fn func(context.Context) (any, error)) (any, error) {
	op := func() (any, error) {
		v, err := fn(ctx)
		if err != nil && shouldRetry != nil && !shouldRetry(err) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.opts.NewBackOff()),
		backoff.WithMaxTries(uint(retry+1)),
		backoff.WithMaxElapsedTime(0),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return v, err
}
