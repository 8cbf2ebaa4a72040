package repository

import (
	"context"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/port"
)

// Notifications is the repository over the notifications table,
// ordered newest first.
type Notifications struct {
	store port.NotificationStore
	feed  port.ChangeFeed
	opts  Options
}

func NewNotifications(store port.NotificationStore, feed port.ChangeFeed, opts Options) *Notifications {
	return &Notifications{store: store, feed: feed, opts: opts}
}

func (r *Notifications) List(ctx context.Context) ([]domain.Notification, error) {
	return r.store.ListNotifications(ctx)
}

func (r *Notifications) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	return r.store.CreateNotification(ctx, n)
}

func (r *Notifications) Delete(ctx context.Context, id string) error {
	return r.store.DeleteNotification(ctx, id)
}

// Subscribe keeps onChange supplied with the full announcement list.
func (r *Notifications) Subscribe(ctx context.Context, onChange func([]domain.Notification)) (func(), error) {
	return Subscribe(ctx, r.feed, "notifications", func(ctx context.Context) ([]domain.Notification, error) {
		return r.store.ListNotifications(ctx)
	}, onChange, r.opts)
}
