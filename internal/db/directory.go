package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a directory lookup matches no row.
var ErrNotFound = errors.New("not found")

// Directory resolves fan-out audiences and the profile/activity
// details that go into notification copy. All views are read-only.
type Directory struct {
	db     *DB
	logger *zap.Logger
}

// NewDirectory creates a new directory accessor
func NewDirectory(db *DB, logger *zap.Logger) *Directory {
	return &Directory{
		db:     db,
		logger: logger,
	}
}

// AttendeeIDs returns every user with an attendance row for the
// activity.
func (d *Directory) AttendeeIDs(ctx context.Context, activityID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT user_id FROM activity_attendance WHERE activity_id = $1`

	rows, err := d.db.Pool().Query(ctx, query, activityID)
	if err != nil {
		d.logger.Error("failed to query attendees",
			zap.Error(err),
			zap.String("activity_id", activityID.String()),
		)
		return nil, fmt.Errorf("query attendees: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// NewActivitySubscriberIDs returns every user whose preferences opt
// into new-activity notifications.
func (d *Directory) NewActivitySubscriberIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT user_id FROM user_preferences WHERE new_activities = TRUE`

	rows, err := d.db.Pool().Query(ctx, query)
	if err != nil {
		d.logger.Error("failed to query new-activity subscribers", zap.Error(err))
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

// Activity fetches the slice of an activity needed for fan-out copy.
func (d *Directory) Activity(ctx context.Context, id uuid.UUID) (*Activity, error) {
	query := `SELECT id, title, creator_id, starts_at FROM activities WHERE id = $1`

	var activity Activity
	err := d.db.Pool().QueryRow(ctx, query, id).Scan(
		&activity.ID,
		&activity.Title,
		&activity.CreatorID,
		&activity.StartsAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}

	if err != nil {
		d.logger.Error("failed to get activity",
			zap.Error(err),
			zap.String("activity_id", id.String()),
		)
		return nil, fmt.Errorf("query activity: %w", err)
	}

	return &activity, nil
}

// Profile fetches the email address and display name for a user.
func (d *Directory) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	query := `SELECT id, email, display_name FROM profiles WHERE id = $1`

	var profile Profile
	err := d.db.Pool().QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.Email,
		&profile.DisplayName,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}

	if err != nil {
		d.logger.Error("failed to get profile",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("query profile: %w", err)
	}

	return &profile, nil
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return ids, nil
}
