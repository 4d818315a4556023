package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PreferenceStore reads per-user notification preferences. The rows
// belong to the platform; this service never writes them.
type PreferenceStore struct {
	db     *DB
	logger *zap.Logger
}

// NewPreferenceStore creates a new preference store accessor
func NewPreferenceStore(db *DB, logger *zap.Logger) *PreferenceStore {
	return &PreferenceStore{
		db:     db,
		logger: logger,
	}
}

// Get fetches a user's preferences. A missing row returns (nil, nil):
// "no row" means opt-in cannot be confirmed, which callers must treat
// the same as every channel being off.
func (s *PreferenceStore) Get(ctx context.Context, userID uuid.UUID) (*UserPreferences, error) {
	query := `
		SELECT
			user_id, email_notifications, push_notifications,
			activity_reminders_24h, activity_reminders_1h,
			activity_updates, new_activities, social_notifications,
			marketing_emails, preferred_reminder_time, timezone
		FROM user_preferences
		WHERE user_id = $1
	`

	var prefs UserPreferences
	err := s.db.Pool().QueryRow(ctx, query, userID).Scan(
		&prefs.UserID,
		&prefs.EmailNotifications,
		&prefs.PushNotifications,
		&prefs.ActivityReminders24h,
		&prefs.ActivityReminders1h,
		&prefs.ActivityUpdates,
		&prefs.NewActivities,
		&prefs.SocialNotifications,
		&prefs.MarketingEmails,
		&prefs.PreferredReminderTime,
		&prefs.Timezone,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		s.logger.Error("failed to get user preferences",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("query user preferences: %w", err)
	}

	return &prefs, nil
}
