package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/equipedash/equipe-dash-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// UserStore implementation — users table via PostgREST
// ============================================================

// ListUsers returns all profiles ordered by name ascending.
func (c *Client) ListUsers(ctx context.Context) ([]domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListUsers")
	defer span.End()

	body, err := c.doGet(ctx, "users?select=*&order=name.asc")
	if err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "users", Err: err}
	}
	if body == nil {
		return []domain.UserProfile{}, nil
	}

	var rows []domain.UserProfile
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "users", Err: fmt.Errorf("decode users: %w", err)}
	}
	return rows, nil
}

// GetUser looks a profile up by id. A missing row is (nil, nil);
// profile resolution treats that as "provision one".
func (c *Client) GetUser(ctx context.Context, id string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	path := fmt.Sprintf("users?id=eq.%s&limit=1", url.QueryEscape(id))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "users", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []domain.UserProfile
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "users", Err: fmt.Errorf("decode users: %w", err)}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CreateUser inserts a profile row. The id must match the auth
// identity id; this is the soft join key for the whole data model.
func (c *Client) CreateUser(ctx context.Context, u *domain.UserProfile) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", u.ID))

	payload := map[string]any{
		"id":    u.ID,
		"email": u.Email,
		"name":  u.Name,
		"role":  u.Role,
	}
	if u.PhotoURL != "" {
		payload["photo_url"] = u.PhotoURL
	}

	body, err := c.doPost(ctx, "users", payload, false)
	if err != nil {
		return nil, &domain.ErrRemoteWrite{Table: "users", Op: "insert", Err: err}
	}

	var created domain.UserProfile
	if err := firstRow(body, &created); err != nil {
		return nil, &domain.ErrRemoteWrite{Table: "users", Op: "insert", Err: fmt.Errorf("decode user: %w", err)}
	}
	return &created, nil
}

// UpdateUser patches the supplied profile fields. Role is immutable
// after signup and is stripped here.
func (c *Client) UpdateUser(ctx context.Context, id string, fields map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	data := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if k == "id" || k == "role" || k == "created_at" {
			continue
		}
		data[k] = v
	}
	data["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	path := fmt.Sprintf("users?id=eq.%s", url.QueryEscape(id))
	if err := c.doPatch(ctx, path, data); err != nil {
		return &domain.ErrRemoteWrite{Table: "users", Op: "update", Err: err}
	}
	return nil
}
