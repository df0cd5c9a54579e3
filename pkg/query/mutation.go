package query

import (
	"context"
	"sync/atomic"
)

type MutationOptions[I, O any] struct {
	// Key names the mutation in Subscribe notifications.
	Key Key
	// Retry overrides the client's MutationRetry when non-nil.
	Retry       *int
	ShouldRetry func(error) bool

	OnMutate  func(input I)
	OnSuccess func(ctx context.Context, output O, input I)
	OnError   func(err error, input I)
}

// Mutation wraps one asynchronous write. Calls are never shared or
// deduplicated; each Mutate runs the function.
type Mutation[I, O any] struct {
	client  *Client
	fn      func(context.Context, I) (O, error)
	opts    MutationOptions[I, O]
	retry   int
	pending atomic.Int32
}

func NewMutation[I, O any](c *Client, fn func(context.Context, I) (O, error), opts MutationOptions[I, O]) *Mutation[I, O] {
	retry := c.opts.MutationRetry
	if opts.Retry != nil {
		retry = max(*opts.Retry, 0)
	}
	return &Mutation[I, O]{client: c, fn: fn, opts: opts, retry: retry}
}

// IsPending reports whether any call is still running.
func (m *Mutation[I, O]) IsPending() bool {
	return m.pending.Load() > 0
}

type mutationResult[O any] struct {
	out O
	err error
}

// Mutate runs the mutation and its hooks. The hooks run to completion even
// when ctx ends first; the caller then gets ctx's error.
func (m *Mutation[I, O]) Mutate(ctx context.Context, input I) (O, error) {
	m.pending.Add(1)
	m.client.notify(m.opts.Key)

	detached := context.WithoutCancel(ctx)
	done := make(chan mutationResult[O], 1)

	go func() {
		if m.opts.OnMutate != nil {
			m.opts.OnMutate(input)
		}

		v, err := m.client.retry(detached, m.retry, m.opts.ShouldRetry, func(ctx context.Context) (any, error) {
			return m.fn(ctx, input)
		})
		out := valueOf[O](v)

		if err != nil {
			if m.opts.OnError != nil {
				m.opts.OnError(err, input)
			}
		} else if m.opts.OnSuccess != nil {
			m.opts.OnSuccess(detached, out, input)
		}
		m.pending.Add(-1)
		m.client.notify(m.opts.Key)
		done <- mutationResult[O]{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		var zero O
		return zero, ctx.Err()
	}
}
