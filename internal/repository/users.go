package repository

import (
	"context"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/port"
)

// Users is the repository over the users table, ordered by name.
type Users struct {
	store port.UserStore
	feed  port.ChangeFeed
	opts  Options
}

func NewUsers(store port.UserStore, feed port.ChangeFeed, opts Options) *Users {
	return &Users{store: store, feed: feed, opts: opts}
}

func (r *Users) List(ctx context.Context) ([]domain.UserProfile, error) {
	return r.store.ListUsers(ctx)
}

func (r *Users) Get(ctx context.Context, id string) (*domain.UserProfile, error) {
	return r.store.GetUser(ctx, id)
}

func (r *Users) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.store.UpdateUser(ctx, id, fields)
}

// Subscribe keeps onChange supplied with the full team roster.
func (r *Users) Subscribe(ctx context.Context, onChange func([]domain.UserProfile)) (func(), error) {
	return Subscribe(ctx, r.feed, "users", func(ctx context.Context) ([]domain.UserProfile, error) {
		return r.store.ListUsers(ctx)
	}, onChange, r.opts)
}
