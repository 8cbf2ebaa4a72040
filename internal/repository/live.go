// Package repository implements the typed resource repositories and
// the synchronization primitive they share: subscribe is an initial
// fetch plus a full invalidate-and-refetch on every change
// notification from the backend. Refetching everything instead of
// patching individual rows trades bandwidth for correctness
// simplicity; at single-team data volumes the trade is won outright,
// and an entire class of client-side merge bugs never exists.
package repository

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/equipedash/equipe-dash-go/internal/infra/observability"
	"github.com/equipedash/equipe-dash-go/internal/infra/resilience"
	"github.com/equipedash/equipe-dash-go/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ListFunc fetches the complete current result set for a subscription.
type ListFunc[T any] func(ctx context.Context) (T, error)

// Options carries the shared infrastructure every repository uses.
// Bulkhead bounds concurrent refetches across all live subscriptions
// so a notification storm cannot exhaust the backend connection pool.
type Options struct {
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Bulkhead *resilience.Bulkhead
}

type liveSub[T any] struct {
	table    string
	list     ListFunc[T]
	onChange func(T)
	opts     Options

	flight singleflight.Group

	gen atomic.Uint64 // next refetch generation

	mu        sync.Mutex // serializes delivery
	delivered uint64     // generation of the last delivered snapshot
}

// Subscribe establishes a live view over one table: it registers a
// change handler on the feed, performs one initial list and delivers
// the result, then re-lists on every subsequent table change
// regardless of whether the changed row matched the filter baked into
// list. The returned stop function is idempotent.
//
// Two notifications in quick succession may race their refetches;
// a generation counter taken before each list guarantees a superseded
// result is dropped rather than delivered out of order, so the most
// recently delivered snapshot always reflects server state at or
// after every earlier delivery.
//
// A failed refetch keeps the previous snapshot in place: it is logged
// and counted, and the next notification retries naturally.
func Subscribe[T any](ctx context.Context, feed port.ChangeFeed, table string, list ListFunc[T], onChange func(T), opts Options) (func(), error) {
	s := &liveSub[T]{
		table:    table,
		list:     list,
		onChange: onChange,
		opts:     opts,
	}

	subCtx, cancel := context.WithCancel(ctx)

	// Register before the initial fetch so a change landing in between
	// triggers a refetch instead of being missed.
	feedStop, err := feed.OnTableChange(table, func() {
		opts.Metrics.IncrRefetch(table)
		// Any list already in flight started before this change
		// committed. Detach it so the refetch for this notification
		// issues a fresh query instead of joining a pre-change read.
		s.flight.Forget("list")
		go s.refresh(subCtx)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	if err := s.initial(subCtx); err != nil {
		feedStop()
		cancel()
		return nil, err
	}

	opts.Metrics.SubscriptionOpened(table)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			feedStop()
			cancel()
			opts.Metrics.SubscriptionClosed(table)
		})
	}
	return stop, nil
}

// initial performs the first list synchronously; its failure is the
// caller's to handle, unlike notification-triggered refetches.
func (s *liveSub[T]) initial(ctx context.Context) error {
	gen := s.gen.Add(1)

	result, err := s.list(ctx)
	if err != nil {
		return err
	}

	s.deliver(gen, result)
	return nil
}

func (s *liveSub[T]) refresh(ctx context.Context) {
	gen := s.gen.Add(1)

	if s.opts.Bulkhead != nil {
		if err := s.opts.Bulkhead.Acquire(ctx); err != nil {
			return // subscription stopped while queued
		}
		defer s.opts.Bulkhead.Release()
	}

	// Refetches coalesce onto one in-flight list only when no newer
	// change has arrived: the feed handler forgets the flight on every
	// notification, so a joined result is never older than the change
	// it answers. The generation check decides which waiter delivers.
	v, err, _ := s.flight.Do("list", func() (any, error) {
		return s.list(ctx)
	})
	if err != nil {
		if ctx.Err() == nil {
			s.opts.Logger.Warn("live: refetch failed, keeping previous snapshot",
				zap.String("table", s.table),
				zap.Error(err),
			)
			s.opts.Metrics.IncrRefetchFailure(s.table)
		}
		return
	}

	s.deliver(gen, v.(T))
}

// deliver hands the snapshot to the consumer unless a newer
// generation already did.
func (s *liveSub[T]) deliver(gen uint64, result T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen <= s.delivered {
		s.opts.Metrics.IncrStaleDrop(s.table)
		return
	}
	s.delivered = gen

	s.opts.Metrics.IncrSnapshotDelivered(s.table)
	s.onChange(result)
}
