// Package notify persists user notifications and pushes them to connected
// clients in real time.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"Gamarr/models"
	"Gamarr/shared/logger"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// Store persists notifications.
type Store interface {
	InsertNotifications(ctx context.Context, notifications []models.Notification) error
	ListNotifications(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID int64, id string) (bool, error)
}

// Publisher delivers a stored notification to live clients.
type Publisher interface {
	Publish(n models.Notification) int
}

type Service struct {
	store     Store
	publisher Publisher
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(store Store, publisher Publisher, log *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.Component(log, "notify"),
	}
}

// Send stores the batch in one write and then pushes each notification. Ids
// and timestamps are filled in when missing. Nothing is pushed if the write
// fails.
func (s *Service) Send(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	batch := make([]models.Notification, len(notifications))
	now := s.now()
	for i, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		batch[i] = n
	}

	if err := s.store.InsertNotifications(ctx, batch); err != nil {
		return fmt.Errorf("failed to store notifications: %w", err)
	}

	delivered := 0
	if s.publisher != nil {
		for _, n := range batch {
			delivered += s.publisher.Publish(n)
		}
	}
	s.logger.Info("notifications sent", "count", len(batch), "delivered", delivered)
	return nil
}

func (s *Service) List(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	list, err := s.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, nil
}

// MarkRead reports false when the notification does not belong to the user.
func (s *Service) MarkRead(ctx context.Context, userID int64, id string) (bool, error) {
	ok, err := s.store.MarkNotificationRead(ctx, userID, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return ok, nil
}
