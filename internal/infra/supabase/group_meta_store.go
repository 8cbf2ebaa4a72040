package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/equipedash/equipe-dash-go/internal/domain"
)

// ============================================================
// GroupMetaStore implementation — singleton goal row via PostgREST
// ============================================================

// GetGroupMeta fetches the single goal row, or (nil, nil) when the
// row has never been written.
func (c *Client) GetGroupMeta(ctx context.Context) (*domain.GroupMeta, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetGroupMeta")
	defer span.End()

	path := fmt.Sprintf("group_meta?id=eq.%s&limit=1", domain.GroupMetaID)
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "group_meta", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []domain.GroupMeta
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrRemoteQuery{Table: "group_meta", Err: fmt.Errorf("decode group_meta: %w", err)}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpsertGroupMeta writes the goal, creating the fixed row on first
// use and updating it thereafter. There is no separate create step.
func (c *Client) UpsertGroupMeta(ctx context.Context, numericValue float64, updatedBy string) (*domain.GroupMeta, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertGroupMeta")
	defer span.End()

	payload := map[string]any{
		"id":            domain.GroupMetaID,
		"numeric_value": numericValue,
		"updated_by":    updatedBy,
		"updated_at":    time.Now().UTC().Format(time.RFC3339),
	}

	body, err := c.doPost(ctx, "group_meta", payload, true)
	if err != nil {
		return nil, &domain.ErrRemoteWrite{Table: "group_meta", Op: "upsert", Err: err}
	}

	var meta domain.GroupMeta
	if err := firstRow(body, &meta); err != nil {
		return nil, &domain.ErrRemoteWrite{Table: "group_meta", Op: "upsert", Err: fmt.Errorf("decode group_meta: %w", err)}
	}
	return &meta, nil
}
