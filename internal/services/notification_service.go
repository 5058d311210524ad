package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/platform/jobs"
	"github.com/vendora/api/internal/platform/mail"
	"github.com/vendora/api/internal/repositories"
)

const notificationIDPrefix = "ntf_"

var (
	// ErrNotificationInvalidInput signals the caller provided invalid data.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the notification does not exist for the recipient.
	ErrNotificationNotFound = errors.New("notification: not found")
	// ErrNotificationUnavailable indicates notification dependencies are currently unavailable.
	ErrNotificationUnavailable = errors.New("notification: unavailable")
)

// NotificationEventPublisher publishes notification-created events for
// downstream consumers. Satisfied by jobs.PubSubNotificationPublisher.
type NotificationEventPublisher interface {
	PublishNotificationEvent(ctx context.Context, event jobs.NotificationEvent) (string, error)
}

// NotificationServiceDeps wires the dependencies of the notification service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Publisher     NotificationEventPublisher
	Mailer        mail.Sender

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	notifications repositories.NotificationRepository
	publisher     NotificationEventPublisher
	mailer        mail.Sender

	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		notifications: deps.Notifications,
		publisher:     deps.Publisher,
		mailer:        deps.Mailer,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Send delivers the notification best-effort: failures are logged and never
// surface to the caller. Settlement operations rely on this contract.
func (s *notificationService) Send(ctx context.Context, cmd SendNotificationCommand) {
	if _, err := s.Deliver(ctx, cmd); err != nil {
		s.logger(ctx, "notification.send_failed", map[string]any{
			"recipientId": cmd.RecipientID,
			"type":        string(cmd.Type),
			"orderId":     cmd.OrderID,
			"error":       err.Error(),
		})
	}
}

// Deliver inserts the notification row, then fans out the event and email
// legs best-effort. Only the row insert can fail the call.
func (s *notificationService) Deliver(ctx context.Context, cmd SendNotificationCommand) (Notification, error) {
	recipientID := strings.TrimSpace(cmd.RecipientID)
	if recipientID == "" {
		return Notification{}, fmt.Errorf("%w: recipient id is required", ErrNotificationInvalidInput)
	}
	if strings.TrimSpace(string(cmd.Type)) == "" {
		return Notification{}, fmt.Errorf("%w: notification type is required", ErrNotificationInvalidInput)
	}

	notification := domain.Notification{
		ID:          notificationIDPrefix + s.newID(),
		RecipientID: recipientID,
		Type:        cmd.Type,
		Title:       strings.TrimSpace(cmd.Title),
		Body:        cmd.Body,
		OrderID:     strings.TrimSpace(cmd.OrderID),
		Metadata:    cmd.Metadata,
		CreatedAt:   s.now(),
	}
	if err := s.notifications.Insert(ctx, notification); err != nil {
		return Notification{}, s.translateRepoError(err)
	}

	if s.publisher != nil {
		event := jobs.NotificationEvent{
			NotificationID: notification.ID,
			RecipientID:    notification.RecipientID,
			Type:           string(notification.Type),
			Title:          notification.Title,
			Body:           notification.Body,
			OrderID:        notification.OrderID,
			Metadata:       notification.Metadata,
			OccurredAt:     notification.CreatedAt.Format(time.RFC3339Nano),
		}
		if _, err := s.publisher.PublishNotificationEvent(ctx, event); err != nil {
			s.logger(ctx, "notification.publish_failed", map[string]any{
				"notificationId": notification.ID,
				"error":          err.Error(),
			})
		}
	}

	if s.mailer != nil {
		if email := strings.TrimSpace(cmd.RecipientEmail); email != "" {
			if err := s.mailer.Send(ctx, email, notification.Title, notification.Body); err != nil {
				s.logger(ctx, "notification.email_failed", map[string]any{
					"notificationId": notification.ID,
					"error":          err.Error(),
				})
			}
		}
	}

	return notification, nil
}

// List pages through the recipient's inbox, newest first.
func (s *notificationService) List(ctx context.Context, cmd ListNotificationsCommand) (domain.CursorPage[Notification], error) {
	recipientID := strings.TrimSpace(cmd.RecipientID)
	if recipientID == "" {
		return domain.CursorPage[Notification]{}, fmt.Errorf("%w: recipient id is required", ErrNotificationInvalidInput)
	}
	page, err := s.notifications.ListByRecipient(ctx, recipientID, cmd.Pager)
	if err != nil {
		return domain.CursorPage[Notification]{}, s.translateRepoError(err)
	}
	return page, nil
}

// MarkRead flags the notification as read.
func (s *notificationService) MarkRead(ctx context.Context, cmd NotificationFlagCommand) error {
	recipientID, notificationID, err := validateFlagCommand(cmd)
	if err != nil {
		return err
	}
	if err := s.notifications.MarkRead(ctx, recipientID, notificationID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// MarkStarred toggles the starred flag.
func (s *notificationService) MarkStarred(ctx context.Context, cmd NotificationFlagCommand) error {
	recipientID, notificationID, err := validateFlagCommand(cmd)
	if err != nil {
		return err
	}
	if err := s.notifications.MarkStarred(ctx, recipientID, notificationID, cmd.Starred); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func validateFlagCommand(cmd NotificationFlagCommand) (string, string, error) {
	recipientID := strings.TrimSpace(cmd.RecipientID)
	notificationID := strings.TrimSpace(cmd.NotificationID)
	if recipientID == "" || notificationID == "" {
		return "", "", fmt.Errorf("%w: recipient id and notification id are required", ErrNotificationInvalidInput)
	}
	return recipientID, notificationID, nil
}

func (s *notificationService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s", ErrNotificationNotFound, repoErr.Error())
	}
	return fmt.Errorf("%w: %v", ErrNotificationUnavailable, err)
}
