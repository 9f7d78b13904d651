package api

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/domain"
	"github.com/fishperson113/ScholarshipsRouting-2.0/internal/store"
	"github.com/go-chi/chi/v5"
)

const defaultNotificationLimit = 50

type NotificationHandler struct {
	store  store.DocumentStore
	logger *slog.Logger
}

func NewNotificationHandler(docs store.DocumentStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: docs, logger: logger}
}

// List returns the user's notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	docs, err := h.store.Query(r.Context(), store.CollectionNotifications, domain.Record{"owner_id": userID})
	if err != nil {
		h.logger.Error("failed to query notifications", "owner_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to fetch notifications")
		return
	}

	notifications := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		notifications = append(notifications, domain.NotificationFromRecord(doc.ID, doc.Data))
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	if len(notifications) > limit {
		notifications = notifications[:limit]
	}

	respondJSON(w, http.StatusOK, notifications)
}

// MarkRead flips a notification's read flag after verifying ownership.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	notifID := chi.URLParam(r, "id")

	rec, ok, err := h.store.Get(r.Context(), store.CollectionNotifications, notifID)
	if err != nil {
		h.logger.Error("failed to load notification", "notification_id", notifID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load notification")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}

	if owner, _ := rec["owner_id"].(string); owner != userID {
		h.logger.Warn("unauthorized mark-read attempt", "owner_id", userID, "notification_id", notifID)
		respondError(w, http.StatusForbidden, "notification does not belong to user")
		return
	}

	if err := h.store.Update(r.Context(), store.CollectionNotifications, notifID, domain.Record{"is_read": true}); err != nil {
		h.logger.Error("failed to mark notification read", "notification_id", notifID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update notification")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
