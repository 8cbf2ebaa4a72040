package service

import (
	"context"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var eventTracer = otel.Tracer("service/events")

// EventService applies the calendar rules on top of the events
// repository: any authenticated user creates events; only the creator
// or a supervisor mutates or deletes one. The same policy exists as
// row-level security in the backend, which remains the authority —
// the checks here keep the API honest without a round trip.
type EventService struct {
	events *repository.Events
	logger *zap.Logger
}

func NewEventService(events *repository.Events, logger *zap.Logger) *EventService {
	return &EventService{events: events, logger: logger}
}

// List returns events matching f in start-date order.
func (s *EventService) List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	ctx, span := eventTracer.Start(ctx, "EventService.List")
	defer span.End()
	return s.events.List(ctx, f)
}

// Create validates the payload and inserts it on behalf of actor.
// An end date before the start date is allowed but logged; the
// calendar has always accepted such ranges.
func (s *EventService) Create(ctx context.Context, actor *domain.UserProfile, ev *domain.Event) (*domain.Event, error) {
	ctx, span := eventTracer.Start(ctx, "EventService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("event.category", string(ev.Category)))

	if ev.Title == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "must not be empty"}
	}
	if !domain.ValidCategory(ev.Category) {
		return nil, &domain.ErrValidation{Field: "category", Message: "unknown category"}
	}
	if ev.Status == "" {
		ev.Status = domain.StatusPlanejado
	}
	if !domain.ValidStatus(ev.Status) {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown status"}
	}
	if ev.StartDate == "" || ev.EndDate == "" {
		return nil, &domain.ErrValidation{Field: "start_date", Message: "start and end dates are required"}
	}
	if ev.EndDate < ev.StartDate {
		s.logger.Warn("event: end date before start date",
			zap.String("start_date", ev.StartDate),
			zap.String("end_date", ev.EndDate),
		)
	}

	ev.CreatedBy = actor.ID
	if ev.AssignedTo == "" {
		ev.AssignedTo = actor.ID
	}

	created, err := s.events.Create(ctx, ev)
	if err != nil {
		return nil, err
	}

	s.logger.Info("event created",
		zap.String("event_id", created.ID),
		zap.String("created_by", actor.ID),
		zap.String("category", string(created.Category)),
	)
	return created, nil
}

// Update patches an event after checking actor may touch it.
func (s *EventService) Update(ctx context.Context, actor *domain.UserProfile, id string, fields map[string]any) error {
	ctx, span := eventTracer.Start(ctx, "EventService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", id))

	if err := s.authorize(ctx, actor, id, "update event"); err != nil {
		return err
	}

	if v, ok := fields["category"].(string); ok && !domain.ValidCategory(domain.EventCategory(v)) {
		return &domain.ErrValidation{Field: "category", Message: "unknown category"}
	}
	if v, ok := fields["status"].(string); ok && !domain.ValidStatus(domain.EventStatus(v)) {
		return &domain.ErrValidation{Field: "status", Message: "unknown status"}
	}

	return s.events.Update(ctx, id, fields)
}

// Delete removes an event after checking actor may touch it.
func (s *EventService) Delete(ctx context.Context, actor *domain.UserProfile, id string) error {
	ctx, span := eventTracer.Start(ctx, "EventService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", id))

	if err := s.authorize(ctx, actor, id, "delete event"); err != nil {
		return err
	}
	return s.events.Delete(ctx, id)
}

func (s *EventService) authorize(ctx context.Context, actor *domain.UserProfile, id, action string) error {
	if actor != nil && actor.Role == domain.RoleSupervisor {
		return nil
	}

	ev, err := s.events.Get(ctx, id)
	if err != nil {
		return err
	}
	if ev == nil {
		return &domain.ErrNotFound{Resource: "event", ID: id}
	}
	if !domain.CanMutateEvent(actor, ev) {
		return &domain.ErrForbidden{Action: action}
	}
	return nil
}
