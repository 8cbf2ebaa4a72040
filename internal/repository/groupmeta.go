package repository

import (
	"context"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/port"
)

// GroupMeta is the single-row repository over the group goal. There
// is no filter shape: list collapses to a fetch of the fixed row, and
// the only write is an upsert keyed by its id.
type GroupMeta struct {
	store port.GroupMetaStore
	feed  port.ChangeFeed
	opts  Options
}

func NewGroupMeta(store port.GroupMetaStore, feed port.ChangeFeed, opts Options) *GroupMeta {
	return &GroupMeta{store: store, feed: feed, opts: opts}
}

// Get returns the goal row, or nil when it was never written.
func (r *GroupMeta) Get(ctx context.Context) (*domain.GroupMeta, error) {
	return r.store.GetGroupMeta(ctx)
}

// Upsert creates the fixed row if absent, otherwise updates it. The
// row count stays at one either way.
func (r *GroupMeta) Upsert(ctx context.Context, numericValue float64, updatedBy string) (*domain.GroupMeta, error) {
	return r.store.UpsertGroupMeta(ctx, numericValue, updatedBy)
}

// Subscribe keeps onChange supplied with the current goal row (nil
// until the first upsert).
func (r *GroupMeta) Subscribe(ctx context.Context, onChange func(*domain.GroupMeta)) (func(), error) {
	return Subscribe(ctx, r.feed, "group_meta", func(ctx context.Context) (*domain.GroupMeta, error) {
		return r.store.GetGroupMeta(ctx)
	}, onChange, r.opts)
}
