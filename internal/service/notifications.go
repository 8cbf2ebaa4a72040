package service

import (
	"context"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/repository"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var notifTracer = otel.Tracer("service/notifications")

// NotificationService applies the announcement rules: everyone reads,
// only supervisors create and delete. Row-level security in the
// backend enforces the same policy independently.
type NotificationService struct {
	notifications *repository.Notifications
	logger        *zap.Logger
}

func NewNotificationService(notifications *repository.Notifications, logger *zap.Logger) *NotificationService {
	return &NotificationService{notifications: notifications, logger: logger}
}

func (s *NotificationService) List(ctx context.Context) ([]domain.Notification, error) {
	ctx, span := notifTracer.Start(ctx, "NotificationService.List")
	defer span.End()
	return s.notifications.List(ctx)
}

func (s *NotificationService) Create(ctx context.Context, actor *domain.UserProfile, n *domain.Notification) (*domain.Notification, error) {
	ctx, span := notifTracer.Start(ctx, "NotificationService.Create")
	defer span.End()

	if actor == nil || actor.Role != domain.RoleSupervisor {
		return nil, &domain.ErrForbidden{Action: "create notification"}
	}
	if n.Title == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "must not be empty"}
	}

	n.CreatedBy = actor.ID
	created, err := s.notifications.Create(ctx, n)
	if err != nil {
		return nil, err
	}

	s.logger.Info("notification posted",
		zap.String("notification_id", created.ID),
		zap.String("created_by", actor.ID),
	)
	return created, nil
}

func (s *NotificationService) Delete(ctx context.Context, actor *domain.UserProfile, id string) error {
	ctx, span := notifTracer.Start(ctx, "NotificationService.Delete")
	defer span.End()

	if actor == nil || actor.Role != domain.RoleSupervisor {
		return &domain.ErrForbidden{Action: "delete notification"}
	}
	return s.notifications.Delete(ctx, id)
}
