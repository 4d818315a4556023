// Package api is the HTTP surface of the notification service: the
// client-facing feed endpoints and the internal event endpoints other
// services call to trigger fan-out.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lokalkafe/lokal-notify/internal/db"
)

// NotificationStore is the slice of the repository the handlers need.
type NotificationStore interface {
	List(ctx context.Context, userID uuid.UUID, params db.ListParams) (*db.ListResult, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

// EventFanout triggers the fan-out recipes behind the internal event
// endpoints.
type EventFanout interface {
	SendActivityReminders(ctx context.Context, activityID uuid.UUID, hoursBefore int) error
	NotifyNewActivity(ctx context.Context, activityID uuid.UUID) error
	NotifyActivityUpdate(ctx context.Context, activityID uuid.UUID, updateType, reason string) error
	NotifyNewFollower(ctx context.Context, userID, followerID uuid.UUID) error
	NotifyNewComment(ctx context.Context, activityID, commenterID uuid.UUID, comment string) error
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger *zap.Logger
	store  NotificationStore
	fanout EventFanout
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, store NotificationStore, fanout EventFanout) *Handler {
	return &Handler{
		logger: logger,
		store:  store,
		fanout: fanout,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type pagination struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}

type listData struct {
	Notifications []*db.Notification `json:"notifications"`
	Pagination    pagination         `json:"pagination"`
}

// ListNotifications handles GET /v1/notifications?page=1&limit=20&filter=unread&orderBy=created_at
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFrom(ctx)

	params := db.ListParams{Page: 1, Limit: 20}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil {
			params.Page = p
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			params.Limit = l
		}
	}

	if filter := r.URL.Query().Get("filter"); filter != "" {
		f := db.Filter(filter)
		if !f.Valid() {
			h.writeError(w, http.StatusBadRequest, "filter must be one of: all, unread, activity, social")
			return
		}
		params.Filter = f
	}

	params.OrderBy = r.URL.Query().Get("orderBy")
	params.Normalize()

	result, err := h.store.List(ctx, userID, params)
	if err != nil {
		h.logger.Error("failed to list notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	notifications := result.Notifications
	if notifications == nil {
		notifications = []*db.Notification{}
	}

	h.writeData(w, http.StatusOK, listData{
		Notifications: notifications,
		Pagination: pagination{
			Page:    params.Page,
			Limit:   params.Limit,
			Total:   result.Total,
			HasMore: result.HasMore,
		},
	})
}

// UnreadCount handles GET /v1/notifications/unread-count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFrom(ctx)

	count, err := h.store.UnreadCount(ctx, userID)
	if err != nil {
		h.logger.Error("failed to count unread notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "failed to count unread notifications")
		return
	}

	h.writeData(w, http.StatusOK, map[string]int64{"count": count})
}

type mutateRequest struct {
	NotificationIDs []string `json:"notification_ids"`
	Action          string   `json:"action,omitempty"`
}

// MarkRead handles PATCH /v1/notifications
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFrom(ctx)

	var req mutateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if req.Action != "read" {
		h.writeError(w, http.StatusBadRequest, "action must be \"read\"")
		return
	}

	ids, ok := h.parseIDs(w, req.NotificationIDs)
	if !ok {
		return
	}

	updated, err := h.store.MarkRead(ctx, userID, ids)
	if err != nil {
		h.logger.Error("failed to mark notifications read",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "failed to update notifications")
		return
	}

	h.logger.Info("notifications marked read",
		zap.String("user_id", userID.String()),
		zap.Int("requested", len(ids)),
		zap.Int64("updated", updated),
	)

	h.writeData(w, http.StatusOK, map[string]int64{"updated": updated})
}

// DeleteNotifications handles DELETE /v1/notifications
func (h *Handler) DeleteNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFrom(ctx)

	var req mutateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	ids, ok := h.parseIDs(w, req.NotificationIDs)
	if !ok {
		return
	}

	deleted, err := h.store.Delete(ctx, userID, ids)
	if err != nil {
		h.logger.Error("failed to delete notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "failed to delete notifications")
		return
	}

	h.logger.Info("notifications deleted",
		zap.String("user_id", userID.String()),
		zap.Int("requested", len(ids)),
		zap.Int64("deleted", deleted),
	)

	h.writeData(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// ActivityCreated handles POST /internal/events/activity-created
func (h *Handler) ActivityCreated(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActivityID string `json:"activity_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	activityID, err := uuid.Parse(req.ActivityID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "activity_id must be a valid UUID")
		return
	}

	if err := h.fanout.NotifyNewActivity(r.Context(), activityID); err != nil {
		h.logger.Error("new-activity fan-out failed",
			zap.Error(err),
			zap.String("activity_id", req.ActivityID),
		)
		h.writeError(w, http.StatusBadGateway, "fan-out failed")
		return
	}

	h.writeData(w, http.StatusOK, nil)
}

// ActivityUpdated handles POST /internal/events/activity-updated
func (h *Handler) ActivityUpdated(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActivityID string `json:"activity_id"`
		UpdateType string `json:"update_type"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	activityID, err := uuid.Parse(req.ActivityID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "activity_id must be a valid UUID")
		return
	}
	if req.UpdateType == "" {
		h.writeError(w, http.StatusBadRequest, "update_type is required")
		return
	}

	if err := h.fanout.NotifyActivityUpdate(r.Context(), activityID, req.UpdateType, req.Reason); err != nil {
		h.logger.Error("activity-update fan-out failed",
			zap.Error(err),
			zap.String("activity_id", req.ActivityID),
			zap.String("update_type", req.UpdateType),
		)
		h.writeError(w, http.StatusBadGateway, "fan-out failed")
		return
	}

	h.writeData(w, http.StatusOK, nil)
}

// ActivityReminders handles POST /internal/events/activity-reminders
func (h *Handler) ActivityReminders(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActivityID  string `json:"activity_id"`
		HoursBefore int    `json:"hours_before"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	activityID, err := uuid.Parse(req.ActivityID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "activity_id must be a valid UUID")
		return
	}

	if err := h.fanout.SendActivityReminders(r.Context(), activityID, req.HoursBefore); err != nil {
		h.logger.Error("reminder fan-out failed",
			zap.Error(err),
			zap.String("activity_id", req.ActivityID),
			zap.Int("hours_before", req.HoursBefore),
		)
		h.writeError(w, http.StatusBadGateway, "fan-out failed")
		return
	}

	h.writeData(w, http.StatusOK, nil)
}

// NewFollower handles POST /internal/events/new-follower
func (h *Handler) NewFollower(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		FollowerID string `json:"follower_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "user_id must be a valid UUID")
		return
	}
	followerID, err := uuid.Parse(req.FollowerID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "follower_id must be a valid UUID")
		return
	}

	if err := h.fanout.NotifyNewFollower(r.Context(), userID, followerID); err != nil {
		h.logger.Error("new-follower notify failed",
			zap.Error(err),
			zap.String("user_id", req.UserID),
			zap.String("follower_id", req.FollowerID),
		)
		h.writeError(w, http.StatusBadGateway, "notify failed")
		return
	}

	h.writeData(w, http.StatusOK, nil)
}

// NewComment handles POST /internal/events/new-comment
func (h *Handler) NewComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActivityID  string `json:"activity_id"`
		CommenterID string `json:"commenter_id"`
		Comment     string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	activityID, err := uuid.Parse(req.ActivityID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "activity_id must be a valid UUID")
		return
	}
	commenterID, err := uuid.Parse(req.CommenterID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "commenter_id must be a valid UUID")
		return
	}

	if err := h.fanout.NotifyNewComment(r.Context(), activityID, commenterID, req.Comment); err != nil {
		h.logger.Error("new-comment notify failed",
			zap.Error(err),
			zap.String("activity_id", req.ActivityID),
			zap.String("commenter_id", req.CommenterID),
		)
		h.writeError(w, http.StatusBadGateway, "notify failed")
		return
	}

	h.writeData(w, http.StatusOK, nil)
}

// parseIDs validates and parses notification ids from a mutation body.
// Writes a 400 and returns false on any bad input.
func (h *Handler) parseIDs(w http.ResponseWriter, raw []string) ([]uuid.UUID, bool) {
	if len(raw) == 0 {
		h.writeError(w, http.StatusBadRequest, "notification_ids must not be empty")
		return nil, false
	}

	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "notification_ids must be valid UUIDs")
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}
