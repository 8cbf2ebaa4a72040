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
// EventStore implementation — events CRUD via PostgREST
// ============================================================

// ListEvents returns events matching every predicate in f, ordered by
// start date ascending.
func (c *Client) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListEvents")
	defer span.End()
	if f.AssignedTo != "" {
		span.SetAttributes(attribute.String("filter.assigned_to", f.AssignedTo))
	}

	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "start_date.asc")
	if f.AssignedTo != "" {
		q.Set("assigned_to", "eq."+f.AssignedTo)
	}
	if f.Category != "" {
		q.Set("category", "eq."+string(f.Category))
	}
	if f.StartDate != "" {
		q.Set("start_date", "gte."+f.StartDate)
	}
	if f.EndDate != "" {
		q.Set("end_date", "lte."+f.EndDate)
	}

	body, err := c.doGet(ctx, "events?"+q.Encode())
	if err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "events", Err: err}
	}
	if body == nil {
		return []domain.Event{}, nil
	}

	var rows []domain.Event
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "events", Err: fmt.Errorf("decode events: %w", err)}
	}
	return rows, nil
}

// GetEvent looks an event up by id; (nil, nil) when absent.
func (c *Client) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetEvent")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", id))

	path := fmt.Sprintf("events?id=eq.%s&limit=1", url.QueryEscape(id))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "events", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []domain.Event
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "events", Err: fmt.Errorf("decode events: %w", err)}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// CreateEvent inserts one event and returns the persisted row with
// the server-assigned id and timestamps.
func (c *Client) CreateEvent(ctx context.Context, ev *domain.Event) (*domain.Event, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateEvent")
	defer span.End()

	payload := map[string]any{
		"title":       ev.Title,
		"description": ev.Description,
		"start_date":  ev.StartDate,
		"end_date":    ev.EndDate,
		"category":    ev.Category,
		"status":      ev.Status,
		"assigned_to": ev.AssignedTo,
		"created_by":  ev.CreatedBy,
	}

	body, err := c.doPost(ctx, "events", payload, false)
	if err != nil {
		return nil, &domain.ErrRemoteWrite{Table: "events", Op: "insert", Err: err}
	}

	var created domain.Event
	if err := firstRow(body, &created); err != nil {
		return nil, &domain.ErrRemoteWrite{Table: "events", Op: "insert", Err: fmt.Errorf("decode event: %w", err)}
	}
	return &created, nil
}

// UpdateEvent patches only the supplied fields plus a fresh
// updated_at. created_at is never touched.
func (c *Client) UpdateEvent(ctx context.Context, id string, fields map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateEvent")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", id))

	data := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if k == "id" || k == "created_at" {
			continue
		}
		data[k] = v
	}
	data["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	path := fmt.Sprintf("events?id=eq.%s", url.QueryEscape(id))
	if err := c.doPatch(ctx, path, data); err != nil {
		return &domain.ErrRemoteWrite{Table: "events", Op: "update", Err: err}
	}
	return nil
}

// DeleteEvent removes the row. Permission is enforced server-side by
// row-level security, not here.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteEvent")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", id))

	path := fmt.Sprintf("events?id=eq.%s", url.QueryEscape(id))
	if err := c.doDelete(ctx, path); err != nil {
		return &domain.ErrRemoteWrite{Table: "events", Op: "delete", Err: err}
	}
	return nil
}
