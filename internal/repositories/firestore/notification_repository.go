package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/vendora/api/internal/domain"
	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/repositories"
)

const notificationsCollection = "notifications"

type notificationDocument struct {
	RecipientID string         `firestore:"recipientId"`
	Type        string         `firestore:"type"`
	Title       string         `firestore:"title"`
	Body        string         `firestore:"body"`
	OrderID     string         `firestore:"orderId,omitempty"`
	IsRead      bool           `firestore:"isRead"`
	IsStarred   bool           `firestore:"isStarred"`
	Metadata    map[string]any `firestore:"metadata,omitempty"`
	CreatedAt   time.Time      `firestore:"createdAt"`
}

// NotificationRepository implements repositories.NotificationRepository on Firestore.
type NotificationRepository struct {
	base *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil)
	return &NotificationRepository{base: base}, nil
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)

// Insert stores a new notification row.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	notificationID := strings.TrimSpace(notification.ID)
	if notificationID == "" {
		return errors.New("notification repository: notification id is required")
	}
	if strings.TrimSpace(notification.RecipientID) == "" {
		return errors.New("notification repository: recipient id is required")
	}
	_, err := r.base.Create(ctx, notificationID, notificationDocument{
		RecipientID: strings.TrimSpace(notification.RecipientID),
		Type:        string(notification.Type),
		Title:       strings.TrimSpace(notification.Title),
		Body:        notification.Body,
		OrderID:     strings.TrimSpace(notification.OrderID),
		IsRead:      notification.IsRead,
		IsStarred:   notification.IsStarred,
		Metadata:    cloneMap(notification.Metadata),
		CreatedAt:   notification.CreatedAt.UTC(),
	})
	return err
}

// ListByRecipient returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository not initialised")
	}
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository: recipient id is required")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, fmt.Errorf("notification repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("recipientId", "==", recipientID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Notification, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeNotificationDocument(doc.ID, doc.Data, doc.CreateTime))
	}

	return domain.CursorPage[domain.Notification]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// MarkRead flags the notification as read. The recipient scope guards against
// flipping another user's row.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	return r.updateOwned(ctx, recipientID, notificationID, []firestore.Update{
		{Path: "isRead", Value: true},
	})
}

// MarkStarred toggles the starred flag on the notification.
func (r *NotificationRepository) MarkStarred(ctx context.Context, recipientID, notificationID string, starred bool) error {
	return r.updateOwned(ctx, recipientID, notificationID, []firestore.Update{
		{Path: "isStarred", Value: starred},
	})
}

func (r *NotificationRepository) updateOwned(ctx context.Context, recipientID, notificationID string, updates []firestore.Update) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	recipientID = strings.TrimSpace(recipientID)
	notificationID = strings.TrimSpace(notificationID)
	if recipientID == "" {
		return errors.New("notification repository: recipient id is required")
	}
	if notificationID == "" {
		return errors.New("notification repository: notification id is required")
	}

	doc, err := r.base.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(doc.Data.RecipientID) != recipientID {
		return pfirestore.NotFoundError("notifications.update", "notification "+notificationID+" not found for recipient")
	}

	_, err = r.base.Update(ctx, notificationID, updates)
	return err
}

func decodeNotificationDocument(id string, doc notificationDocument, createdAt time.Time) domain.Notification {
	return domain.Notification{
		ID:          strings.TrimSpace(id),
		RecipientID: strings.TrimSpace(doc.RecipientID),
		Type:        domain.NotificationType(strings.TrimSpace(doc.Type)),
		Title:       strings.TrimSpace(doc.Title),
		Body:        doc.Body,
		OrderID:     strings.TrimSpace(doc.OrderID),
		IsRead:      doc.IsRead,
		IsStarred:   doc.IsStarred,
		Metadata:    cloneMap(doc.Metadata),
		CreatedAt:   chooseTime(doc.CreatedAt, createdAt),
	}
}
