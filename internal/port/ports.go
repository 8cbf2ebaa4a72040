// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain and
// service layers from the Supabase adapter.
package port

import (
	"context"

	"github.com/equipedash/equipe-dash-go/internal/domain"
)

// UserStore provides read and provisioning access to the users table.
type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.UserProfile, error)
	GetUser(ctx context.Context, id string) (*domain.UserProfile, error)
	CreateUser(ctx context.Context, u *domain.UserProfile) (*domain.UserProfile, error)
	UpdateUser(ctx context.Context, id string, fields map[string]any) error
}

// EventStore provides filtered CRUD access to the events table.
type EventStore interface {
	ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	CreateEvent(ctx context.Context, ev *domain.Event) (*domain.Event, error)
	UpdateEvent(ctx context.Context, id string, fields map[string]any) error
	DeleteEvent(ctx context.Context, id string) error
}

// NotificationStore provides CRUD access to the notifications table.
type NotificationStore interface {
	ListNotifications(ctx context.Context) ([]domain.Notification, error)
	CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	DeleteNotification(ctx context.Context, id string) error
}

// GroupMetaStore provides single-row access to the group_meta table.
// Writes are upserts keyed by the fixed row id.
type GroupMetaStore interface {
	GetGroupMeta(ctx context.Context) (*domain.GroupMeta, error)
	UpsertGroupMeta(ctx context.Context, numericValue float64, updatedBy string) (*domain.GroupMeta, error)
}

// AuthIdentity is the raw authenticated identity as reported by the
// auth backend, before resolution to a UserProfile.
type AuthIdentity struct {
	ID       string
	Email    string
	Name     string // from signup metadata, may be empty
	Role     string // from signup metadata, may be empty
	PhotoURL string // from signup metadata, may be empty
}

// AuthSession is an authenticated backend session.
type AuthSession struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	Identity     AuthIdentity
}

// AuthGateway wraps the auth backend's session primitives.
type AuthGateway interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*AuthIdentity, error)
	SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
	GetSession(ctx context.Context, accessToken string) (*AuthIdentity, error)
}

// ChangeFeed delivers change notifications per table. Handlers receive
// no payload: any insert, update or delete on the table is a cue to
// refetch (invalidate-and-refetch semantics). The returned stop
// function tears down the channel and is safe to call more than once.
type ChangeFeed interface {
	OnTableChange(table string, handler func()) (stop func(), err error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
