package service

import (
	"context"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var perfTracer = otel.Tracer("service/performance")

// TeamSummary backs the team-wide performance charts.
type TeamSummary struct {
	Total      int                          `json:"total"`
	ByStatus   domain.StatusCounts          `json:"by_status"`
	ByCategory map[domain.EventCategory]int `json:"by_category"`
	ByMonth    map[string]int               `json:"by_month"`
	ByAgent    map[string]AgentSummary      `json:"by_agent"`
}

// AgentSummary is one agent's slice of the charts.
type AgentSummary struct {
	Name     string              `json:"name"`
	ByStatus domain.StatusCounts `json:"by_status"`
}

// PerformanceService computes the chart aggregates. Derivations are
// pure over the latest event and roster snapshots; there is no state
// of record here.
type PerformanceService struct {
	events *repository.Events
	users  *repository.Users
}

func NewPerformanceService(events *repository.Events, users *repository.Users) *PerformanceService {
	return &PerformanceService{events: events, users: users}
}

// TeamSummary aggregates all events matching f across the team.
func (s *PerformanceService) TeamSummary(ctx context.Context, f domain.EventFilter) (*TeamSummary, error) {
	ctx, span := perfTracer.Start(ctx, "PerformanceService.TeamSummary")
	defer span.End()

	events, err := s.events.List(ctx, f)
	if err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	byID := domain.UsersByID(users)
	byAgent := make(map[string]AgentSummary)
	for id, counts := range domain.CountByAgent(events) {
		byAgent[id] = AgentSummary{
			Name:     byID[id].Name,
			ByStatus: counts,
		}
	}

	return &TeamSummary{
		Total:      len(events),
		ByStatus:   domain.CountByStatus(events),
		ByCategory: domain.CountByCategory(events),
		ByMonth:    domain.CountByMonth(events),
		ByAgent:    byAgent,
	}, nil
}

// AgentSummary aggregates one agent's events.
func (s *PerformanceService) AgentSummary(ctx context.Context, agentID string) (*TeamSummary, error) {
	ctx, span := perfTracer.Start(ctx, "PerformanceService.AgentSummary")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	return s.TeamSummary(ctx, domain.EventFilter{AssignedTo: agentID})
}
