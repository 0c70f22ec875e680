package service

import (
	"context"
	"errors"

	"houmetna-service/internal/apperror"
	"houmetna-service/internal/messaging"
	"houmetna-service/internal/model"
	"houmetna-service/internal/repository"

	"github.com/google/uuid"
)

// NotificationService serves the notification inbox of a user.
type NotificationService struct {
	notificationRepo *repository.NotificationRepository
	sseHub           *messaging.SSEHub
}

func NewNotificationService(notificationRepo *repository.NotificationRepository, sseHub *messaging.SSEHub) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		sseHub:           sseHub,
	}
}

func (s *NotificationService) GetUserNotifications(ctx context.Context, caller model.Caller, unreadOnly bool) (*model.NotificationListResponse, error) {
	const op = "notification.list"
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated(op, "missing caller identity")
	}

	notifications, err := s.notificationRepo.GetByUserID(ctx, caller.UserID, unreadOnly)
	if err != nil {
		return nil, apperror.StoreFailure(op, err)
	}

	unreadCount, err := s.notificationRepo.GetUnreadCount(ctx, caller.UserID)
	if err != nil {
		return nil, apperror.StoreFailure(op, err)
	}

	return &model.NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unreadCount,
	}, nil
}

// GetNotification returns one notification of the caller. Notifications of
// other users are reported as not found.
func (s *NotificationService) GetNotification(ctx context.Context, caller model.Caller, notificationID string) (*model.Notification, error) {
	const op = "notification.get"
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated(op, "missing caller identity")
	}
	id, err := uuid.Parse(notificationID)
	if err != nil {
		return nil, apperror.InvalidArgument(op, "invalid notification id")
	}

	n, err := s.notificationRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotificationNotFound) || (err == nil && n.UserID != caller.UserID) {
		return nil, apperror.NotFound(op, "notification not found")
	}
	if err != nil {
		return nil, apperror.StoreFailure(op, err)
	}
	return n, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, caller model.Caller, notificationID string) error {
	const op = "notification.mark_read"
	if !caller.Authenticated() {
		return apperror.Unauthenticated(op, "missing caller identity")
	}
	id, err := uuid.Parse(notificationID)
	if err != nil {
		return apperror.InvalidArgument(op, "invalid notification id")
	}

	err = s.notificationRepo.MarkAsRead(ctx, id, caller.UserID)
	if errors.Is(err, repository.ErrNotificationNotFound) {
		return apperror.NotFound(op, "notification not found")
	}
	if err != nil {
		return apperror.StoreFailure(op, err)
	}
	return nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, caller model.Caller) error {
	const op = "notification.mark_all_read"
	if !caller.Authenticated() {
		return apperror.Unauthenticated(op, "missing caller identity")
	}
	if err := s.notificationRepo.MarkAllAsRead(ctx, caller.UserID); err != nil {
		return apperror.StoreFailure(op, err)
	}
	return nil
}

func (s *NotificationService) RegisterClient(userID uuid.UUID) *messaging.SSEClient {
	return s.sseHub.RegisterClient(userID)
}

func (s *NotificationService) UnregisterClient(client *messaging.SSEClient) {
	s.sseHub.UnregisterClient(client)
}
