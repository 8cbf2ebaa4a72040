package service

import (
	"context"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/repository"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var metaTracer = otel.Tracer("service/meta")

// GoalStatus is the group goal together with its derived progress:
// the count of events actually carried out, optionally date-scoped.
// Progress used to be a hard-coded figure; it is computed now.
type GoalStatus struct {
	Meta     *domain.GroupMeta `json:"meta"`
	Realized int               `json:"realized"`
}

// MetaService owns the singleton group goal. Only supervisors write
// it; writes are upserts so there is no separate create step.
type MetaService struct {
	meta   *repository.GroupMeta
	events *repository.Events
	logger *zap.Logger
}

func NewMetaService(meta *repository.GroupMeta, events *repository.Events, logger *zap.Logger) *MetaService {
	return &MetaService{meta: meta, events: events, logger: logger}
}

// Get returns the goal row (nil until first written) plus the
// realized-event count within [from, to]; empty bounds are unbounded.
func (s *MetaService) Get(ctx context.Context, from, to string) (*GoalStatus, error) {
	ctx, span := metaTracer.Start(ctx, "MetaService.Get")
	defer span.End()

	meta, err := s.meta.Get(ctx)
	if err != nil {
		return nil, err
	}

	events, err := s.events.List(ctx, domain.EventFilter{})
	if err != nil {
		return nil, err
	}

	return &GoalStatus{
		Meta:     meta,
		Realized: domain.RealizedCount(events, from, to),
	}, nil
}

// Set upserts the goal value on behalf of actor.
func (s *MetaService) Set(ctx context.Context, actor *domain.UserProfile, numericValue float64) (*domain.GroupMeta, error) {
	ctx, span := metaTracer.Start(ctx, "MetaService.Set")
	defer span.End()

	if actor == nil || actor.Role != domain.RoleSupervisor {
		return nil, &domain.ErrForbidden{Action: "update group goal"}
	}
	if numericValue < 0 {
		return nil, &domain.ErrValidation{Field: "numeric_value", Message: "must not be negative"}
	}

	meta, err := s.meta.Upsert(ctx, numericValue, actor.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("group goal updated",
		zap.Float64("numeric_value", numericValue),
		zap.String("updated_by", actor.ID),
	)
	return meta, nil
}
