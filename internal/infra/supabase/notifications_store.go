package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/equipedash/equipe-dash-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// NotificationStore implementation — notifications via PostgREST
// ============================================================

// ListNotifications returns all announcements, newest first.
func (c *Client) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListNotifications")
	defer span.End()

	body, err := c.doGet(ctx, "notifications?select=*&order=created_at.desc")
	if err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "notifications", Err: err}
	}
	if body == nil {
		return []domain.Notification{}, nil
	}

	var rows []domain.Notification
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "notifications", Err: fmt.Errorf("decode notifications: %w", err)}
	}
	return rows, nil
}

// CreateNotification inserts one announcement and returns it with the
// server-assigned id and created_at.
func (c *Client) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateNotification")
	defer span.End()

	payload := map[string]any{
		"title":      n.Title,
		"body":       n.Body,
		"created_by": n.CreatedBy,
	}

	body, err := c.doPost(ctx, "notifications", payload, false)
	if err != nil {
		return nil, &domain.ErrRemoteWrite{Table: "notifications", Op: "insert", Err: err}
	}

	var created domain.Notification
	if err := firstRow(body, &created); err != nil {
		return nil, &domain.ErrRemoteWrite{Table: "notifications", Op: "insert", Err: fmt.Errorf("decode notification: %w", err)}
	}
	return &created, nil
}

// DeleteNotification removes an announcement.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteNotification")
	defer span.End()
	span.SetAttributes(attribute.String("notification.id", id))

	path := fmt.Sprintf("notifications?id=eq.%s", url.QueryEscape(id))
	if err := c.doDelete(ctx, path); err != nil {
		return &domain.ErrRemoteWrite{Table: "notifications", Op: "delete", Err: err}
	}
	return nil
}
