package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const notificationColumns = `
	id, user_id, title, message, type, category,
	is_read, is_email_sent, related_id, related_type,
	action_url, scheduled_for, created_at, updated_at`

// NotificationRepository handles database operations for notifications
type NotificationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a single notification. The category is derived from
// the type here, never taken from the input.
func (r *NotificationRepository) Create(ctx context.Context, input NotificationInput) (*Notification, error) {
	query := `
		INSERT INTO notifications (
			id, user_id, title, message, type, category,
			related_id, related_type, action_url, scheduled_for
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING ` + notificationColumns

	row := r.db.Pool().QueryRow(ctx, query,
		uuid.New(),
		input.UserID,
		input.Title,
		input.Message,
		input.Type,
		CategoryOf(input.Type),
		input.RelatedID,
		input.RelatedType,
		input.ActionURL,
		input.ScheduledFor,
	)

	notif, err := scanNotification(row)
	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("user_id", input.UserID.String()),
			zap.String("type", string(input.Type)),
		)
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	r.logger.Info("notification created",
		zap.String("notification_id", notif.ID.String()),
		zap.String("user_id", notif.UserID.String()),
		zap.String("type", string(notif.Type)),
	)

	return notif, nil
}

// CreateBatch inserts many notifications in a single multi-row INSERT.
// Returns the number of rows written. The statement is all-or-nothing:
// a failure leaves no partial fan-out behind.
func (r *NotificationRepository) CreateBatch(ctx context.Context, inputs []NotificationInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO notifications (
			id, user_id, title, message, type, category,
			related_id, related_type, action_url, scheduled_for
		) VALUES `

	args := make([]any, 0, len(inputs)*10)
	for i, input := range inputs {
		if i > 0 {
			query += ", "
		}
		base := i * 10
		query += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10)
		args = append(args,
			uuid.New(),
			input.UserID,
			input.Title,
			input.Message,
			input.Type,
			CategoryOf(input.Type),
			input.RelatedID,
			input.RelatedType,
			input.ActionURL,
			input.ScheduledFor,
		)
	}

	result, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to create notification batch",
			zap.Error(err),
			zap.Int("count", len(inputs)),
		)
		return 0, fmt.Errorf("insert notification batch: %w", err)
	}

	r.logger.Info("notification batch created",
		zap.Int64("rows", result.RowsAffected()),
	)

	return int(result.RowsAffected()), nil
}

// MarkRead flips is_read for the given ids. Ownership is enforced in
// the predicate: ids belonging to another user match zero rows and
// that is not an error.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, updated_at = NOW()
		WHERE user_id = $1 AND id = ANY($2)
	`

	result, err := r.db.Pool().Exec(ctx, query, userID, ids)
	if err != nil {
		r.logger.Error("failed to mark notifications read",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("requested", len(ids)),
		)
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}

	return result.RowsAffected(), nil
}

// Delete removes the given ids, scoped to their owner the same way
// MarkRead is.
func (r *NotificationRepository) Delete(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	query := `DELETE FROM notifications WHERE user_id = $1 AND id = ANY($2)`

	result, err := r.db.Pool().Exec(ctx, query, userID, ids)
	if err != nil {
		r.logger.Error("failed to delete notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("requested", len(ids)),
		)
		return 0, fmt.Errorf("delete notifications: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListParams controls pagination and filtering of a user's feed.
type ListParams struct {
	Page    int
	Limit   int
	Filter  Filter
	OrderBy string
}

// ListResult is one page of a user's notifications plus the exact
// total across all pages.
type ListResult struct {
	Notifications []*Notification
	Total         int64
	HasMore       bool
}

// Normalize clamps the parameters to their documented ranges: page >= 1,
// limit in [1,100] defaulting to 20, order-by restricted to an
// allow-list, filter defaulting to all.
func (p *ListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
	switch p.OrderBy {
	case "created_at", "updated_at":
	default:
		p.OrderBy = "created_at"
	}
	if !p.Filter.Valid() {
		p.Filter = FilterAll
	}
}

func filterPredicate(f Filter) string {
	switch f {
	case FilterUnread:
		return " AND is_read = FALSE"
	case FilterActivity:
		return " AND category = 'activity'"
	case FilterSocial:
		return " AND category = 'social'"
	default:
		return ""
	}
}

// List returns one page of the user's notifications, newest first.
// Rows with identical timestamps have no defined relative order.
func (r *NotificationRepository) List(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error) {
	params.Normalize()
	predicate := filterPredicate(params.Filter)
	offset := (params.Page - 1) * params.Limit

	countQuery := `SELECT COUNT(*) FROM notifications WHERE user_id = $1` + predicate

	var total int64
	if err := r.db.Pool().QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		r.logger.Error("failed to count notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	// OrderBy is allow-listed in Normalize, never raw input.
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1` + predicate + `
		ORDER BY ` + params.OrderBy + ` DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool().Query(ctx, query, userID, params.Limit, offset)
	if err != nil {
		r.logger.Error("failed to list notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, notif)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &ListResult{
		Notifications: notifications,
		Total:         total,
		HasMore:       pageHasMore(total, offset, len(notifications)),
	}, nil
}

// pageHasMore reports whether pages beyond the current one exist.
func pageHasMore(total int64, offset, returned int) bool {
	return total > int64(offset+returned)
}

// UnreadCount returns the exact number of unread notifications.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.logger.Error("failed to count unread notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return 0, fmt.Errorf("count unread: %w", err)
	}

	return count, nil
}

// DueScheduled fetches notifications whose scheduled time has elapsed,
// oldest first.
func (r *NotificationRepository) DueScheduled(ctx context.Context, now time.Time, limit int) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE scheduled_for IS NOT NULL AND scheduled_for <= $1
		ORDER BY scheduled_for ASC
		LIMIT $2`

	rows, err := r.db.Pool().Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, notif)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// ClearSchedule nulls scheduled_for so a due notification is picked up
// at most once by the sweeper.
func (r *NotificationRepository) ClearSchedule(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE notifications SET scheduled_for = NULL, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, id); err != nil {
		r.logger.Error("failed to clear schedule",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return fmt.Errorf("clear schedule: %w", err)
	}

	return nil
}

// MarkEmailSent records a successful email dispatch.
func (r *NotificationRepository) MarkEmailSent(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE notifications SET is_email_sent = TRUE, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, id); err != nil {
		r.logger.Error("failed to mark email sent",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return fmt.Errorf("mark email sent: %w", err)
	}

	return nil
}

// DeleteOlderThan removes every notification created before the
// cutoff, regardless of owner or read state.
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE created_at < $1`

	result, err := r.db.Pool().Exec(ctx, query, cutoff)
	if err != nil {
		r.logger.Error("failed to delete old notifications",
			zap.Error(err),
			zap.Time("cutoff", cutoff),
		)
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}

	if n := result.RowsAffected(); n > 0 {
		r.logger.Info("old notifications deleted",
			zap.Int64("rows", n),
			zap.Time("cutoff", cutoff),
		)
	}

	return result.RowsAffected(), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (*Notification, error) {
	var notif Notification
	err := row.Scan(
		&notif.ID,
		&notif.UserID,
		&notif.Title,
		&notif.Message,
		&notif.Type,
		&notif.Category,
		&notif.IsRead,
		&notif.IsEmailSent,
		&notif.RelatedID,
		&notif.RelatedType,
		&notif.ActionURL,
		&notif.ScheduledFor,
		&notif.CreatedAt,
		&notif.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &notif, nil
}
