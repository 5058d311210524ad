package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendora/api/internal/platform/auth"
	"github.com/vendora/api/internal/platform/httpx"
	"github.com/vendora/api/internal/services"
)

const maxNotificationRequestBody = 2 * 1024

// NotificationHandlers serves the per-user notification inbox.
type NotificationHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
}

// NewNotificationHandlers constructs inbox handlers guarded by Firebase authentication.
func NewNotificationHandlers(authn *auth.Authenticator, notifications services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{
		authn:         authn,
		notifications: notifications,
	}
}

// Routes registers the /notifications endpoints. Any authenticated role may
// read its own inbox.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Get("/", h.list)
	group.Post("/{notificationID}/read", h.markRead)
	group.Post("/{notificationID}/star", h.markStarred)
}

type notificationListResponse struct {
	Items         []notificationPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type starRequest struct {
	Starred bool `json:"starred"`
}

func (h *NotificationHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.notifications != nil, "notification")
	if !ok {
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
		return
	}

	page, err := h.notifications.List(ctx, services.ListNotificationsCommand{
		RecipientID: identity.UID,
		Pager:       pager,
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	items := make([]notificationPayload, 0, len(page.Items))
	for _, n := range page.Items {
		items = append(items, buildNotificationPayload(n))
	}
	writeJSONResponse(w, http.StatusOK, notificationListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.notifications != nil, "notification")
	if !ok {
		return
	}

	err := h.notifications.MarkRead(ctx, services.NotificationFlagCommand{
		RecipientID:    identity.UID,
		NotificationID: chi.URLParam(r, "notificationID"),
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *NotificationHandlers) markStarred(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.notifications != nil, "notification")
	if !ok {
		return
	}

	req := starRequest{Starred: true}
	if !decodeRequest(ctx, w, r, maxNotificationRequestBody, &req) {
		return
	}

	err := h.notifications.MarkStarred(ctx, services.NotificationFlagCommand{
		RecipientID:    identity.UID,
		NotificationID: chi.URLParam(r, "notificationID"),
		Starred:        req.Starred,
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeNotificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotificationInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	case errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound(err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("failed to process notification request"))
	}
}
