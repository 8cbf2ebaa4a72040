package repository

import (
	"context"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/port"
)

// Events is the repository over the events table. Filters are applied
// server-side; results come back ordered by start date ascending.
type Events struct {
	store port.EventStore
	feed  port.ChangeFeed
	opts  Options
}

func NewEvents(store port.EventStore, feed port.ChangeFeed, opts Options) *Events {
	return &Events{store: store, feed: feed, opts: opts}
}

// List issues a single query with every predicate of f conjunctively.
func (r *Events) List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	return r.store.ListEvents(ctx, f)
}

// Get fetches a single event by id, or nil when absent.
func (r *Events) Get(ctx context.Context, id string) (*domain.Event, error) {
	return r.store.GetEvent(ctx, id)
}

// Create inserts one event and returns the fully populated row.
func (r *Events) Create(ctx context.Context, ev *domain.Event) (*domain.Event, error) {
	return r.store.CreateEvent(ctx, ev)
}

// Update patches the supplied fields only. No optimistic local
// mutation happens; consumers observe the result through their
// subscription.
func (r *Events) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.store.UpdateEvent(ctx, id, fields)
}

// Delete removes the row.
func (r *Events) Delete(ctx context.Context, id string) error {
	return r.store.DeleteEvent(ctx, id)
}

// Subscribe keeps onChange supplied with the complete, current set of
// events matching f for as long as the subscription lives.
func (r *Events) Subscribe(ctx context.Context, f domain.EventFilter, onChange func([]domain.Event)) (func(), error) {
	return Subscribe(ctx, r.feed, "events", func(ctx context.Context) ([]domain.Event, error) {
		return r.store.ListEvents(ctx, f)
	}, onChange, r.opts)
}
