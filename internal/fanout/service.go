// Package fanout turns platform events into notification rows: it
// resolves the audience for an event, builds one payload per
// recipient, and writes them through the repository. Side channels
// (email, push) hang off the single-create path and are always
// best-effort.
package fanout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lokalkafe/lokal-notify/internal/db"
	"github.com/lokalkafe/lokal-notify/internal/mailer"
	"github.com/lokalkafe/lokal-notify/internal/metrics"
)

// Store is the slice of the notification repository fan-out needs.
type Store interface {
	Create(ctx context.Context, input db.NotificationInput) (*db.Notification, error)
	CreateBatch(ctx context.Context, inputs []db.NotificationInput) (int, error)
}

// Preferences reads a user's opt-in flags.
type Preferences interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.UserPreferences, error)
}

// Directory resolves audiences and the entities behind an event.
type Directory interface {
	AttendeeIDs(ctx context.Context, activityID uuid.UUID) ([]uuid.UUID, error)
	NewActivitySubscriberIDs(ctx context.Context) ([]uuid.UUID, error)
	Activity(ctx context.Context, id uuid.UUID) (*db.Activity, error)
	Profile(ctx context.Context, userID uuid.UUID) (*db.Profile, error)
}

// EmailDispatcher sends the email for one notification.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, notif *db.Notification) error
}

// PushPublisher publishes one push event per notification.
type PushPublisher interface {
	Publish(ctx context.Context, notif *db.Notification) error
}

// Service owns the fan-out recipes. Constructed with its dependencies
// injected; there is no package-level instance.
type Service struct {
	store     Store
	prefs     Preferences
	directory Directory
	email     EmailDispatcher
	push      PushPublisher // nil when push is not configured
	logger    *zap.Logger
}

// New creates a fan-out service. push may be nil.
func New(store Store, prefs Preferences, directory Directory, email EmailDispatcher, push PushPublisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		prefs:     prefs,
		directory: directory,
		email:     email,
		push:      push,
		logger:    logger,
	}
}

// Create inserts a single notification and fires the side channels
// inline. A missing preferences row means opt-in cannot be confirmed:
// the row is still created, the side channels stay quiet. Side-channel
// failures are logged and never fail the creation.
func (s *Service) Create(ctx context.Context, input db.NotificationInput) (*db.Notification, error) {
	notif, err := s.store.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	metrics.RecordNotificationCreated(string(notif.Type))

	prefs, err := s.prefs.Get(ctx, notif.UserID)
	if err != nil {
		s.logger.Warn("preferences unavailable, skipping side channels",
			zap.Error(err),
			zap.String("user_id", notif.UserID.String()),
		)
		return notif, nil
	}
	if prefs == nil {
		s.logger.Warn("no preferences row, skipping side channels",
			zap.String("user_id", notif.UserID.String()),
		)
		return notif, nil
	}

	// Scheduled notifications are emailed by the sweeper once due.
	if notif.ScheduledFor == nil && mailer.ShouldSendEmail(notif.Type, prefs) {
		if err := s.email.Dispatch(ctx, notif); err != nil {
			metrics.RecordEmail("failed")
			s.logger.Warn("inline email dispatch failed",
				zap.Error(err),
				zap.String("notification_id", notif.ID.String()),
			)
		} else {
			metrics.RecordEmail("sent")
		}
	}

	if s.push != nil && prefs.PushNotifications {
		if err := s.push.Publish(ctx, notif); err != nil {
			s.logger.Warn("push publish failed",
				zap.Error(err),
				zap.String("notification_id", notif.ID.String()),
			)
		}
	}

	return notif, nil
}

// CreateBatch bulk-inserts the payloads in one statement. The bulk
// path does not dispatch email per row; scheduled rows are picked up
// by the sweeper instead.
func (s *Service) CreateBatch(ctx context.Context, inputs []db.NotificationInput) error {
	if len(inputs) == 0 {
		return nil
	}

	n, err := s.store.CreateBatch(ctx, inputs)
	if err != nil {
		return err
	}

	for _, input := range inputs {
		metrics.RecordNotificationCreated(string(input.Type))
	}
	metrics.RecordFanout(n)

	return nil
}

// SendActivityReminders notifies every attendee of an upcoming
// activity. hoursBefore == 24 selects the day-ahead reminder; any
// other value selects the 1-hour reminder.
func (s *Service) SendActivityReminders(ctx context.Context, activityID uuid.UUID, hoursBefore int) error {
	activity, err := s.directory.Activity(ctx, activityID)
	if err != nil {
		s.logger.Error("reminder fan-out: activity lookup failed",
			zap.Error(err),
			zap.String("activity_id", activityID.String()),
		)
		return fmt.Errorf("resolve activity: %w", err)
	}

	attendees, err := s.directory.AttendeeIDs(ctx, activityID)
	if err != nil {
		return fmt.Errorf("resolve attendees: %w", err)
	}
	if len(attendees) == 0 {
		return nil
	}

	typ := db.TypeActivityReminder1h
	message := fmt.Sprintf("%s etkinliği 1 saat içinde başlıyor!", activity.Title)
	if hoursBefore == 24 {
		typ = db.TypeActivityReminder24h
		message = fmt.Sprintf("%s etkinliği yarın başlıyor!", activity.Title)
	}

	inputs := s.buildForAll(attendees, typ, "Etkinlik Hatırlatması", message, activity.ID)

	s.logger.Info("sending activity reminders",
		zap.String("activity_id", activityID.String()),
		zap.Int("recipients", len(inputs)),
		zap.Int("hours_before", hoursBefore),
	)

	return s.CreateBatch(ctx, inputs)
}

// NotifyNewActivity notifies every user subscribed to new-activity
// announcements.
func (s *Service) NotifyNewActivity(ctx context.Context, activityID uuid.UUID) error {
	activity, err := s.directory.Activity(ctx, activityID)
	if err != nil {
		s.logger.Error("new-activity fan-out: activity lookup failed",
			zap.Error(err),
			zap.String("activity_id", activityID.String()),
		)
		return fmt.Errorf("resolve activity: %w", err)
	}

	subscribers, err := s.directory.NewActivitySubscriberIDs(ctx)
	if err != nil {
		return fmt.Errorf("resolve subscribers: %w", err)
	}
	if len(subscribers) == 0 {
		return nil
	}

	message := fmt.Sprintf("Lokal'de yeni bir etkinlik var: %s", activity.Title)
	inputs := s.buildForAll(subscribers, db.TypeNewActivity, "Yeni Etkinlik", message, activity.ID)

	s.logger.Info("announcing new activity",
		zap.String("activity_id", activityID.String()),
		zap.Int("recipients", len(inputs)),
	)

	return s.CreateBatch(ctx, inputs)
}

// NotifyActivityUpdate notifies attendees about a change. updateType
// "cancelled" produces a cancellation with the optional reason in the
// copy; everything else is a plain update.
func (s *Service) NotifyActivityUpdate(ctx context.Context, activityID uuid.UUID, updateType, reason string) error {
	activity, err := s.directory.Activity(ctx, activityID)
	if err != nil {
		s.logger.Error("update fan-out: activity lookup failed",
			zap.Error(err),
			zap.String("activity_id", activityID.String()),
		)
		return fmt.Errorf("resolve activity: %w", err)
	}

	attendees, err := s.directory.AttendeeIDs(ctx, activityID)
	if err != nil {
		return fmt.Errorf("resolve attendees: %w", err)
	}
	if len(attendees) == 0 {
		return nil
	}

	typ := db.TypeActivityUpdate
	title := "Etkinlik Güncellendi"
	message := fmt.Sprintf("%s etkinliğinde değişiklik yapıldı.", activity.Title)
	if updateType == "cancelled" {
		typ = db.TypeActivityCancelled
		title = "Etkinlik İptal Edildi"
		message = fmt.Sprintf("%s etkinliği iptal edildi.", activity.Title)
		if reason != "" {
			message += fmt.Sprintf(" Sebep: %s", reason)
		}
	}

	inputs := s.buildForAll(attendees, typ, title, message, activity.ID)

	s.logger.Info("notifying activity update",
		zap.String("activity_id", activityID.String()),
		zap.String("update_type", updateType),
		zap.Int("recipients", len(inputs)),
	)

	return s.CreateBatch(ctx, inputs)
}

// NotifyNewFollower tells a user someone started following them.
func (s *Service) NotifyNewFollower(ctx context.Context, userID, followerID uuid.UUID) error {
	follower, err := s.directory.Profile(ctx, followerID)
	if err != nil {
		s.logger.Error("follower notify: profile lookup failed",
			zap.Error(err),
			zap.String("follower_id", followerID.String()),
		)
		return fmt.Errorf("resolve follower: %w", err)
	}

	relatedID := followerID
	relatedType := db.RelatedUser
	actionURL := "/profile/" + followerID.String()

	_, err = s.Create(ctx, db.NotificationInput{
		UserID:      userID,
		Type:        db.TypeSocialInteraction,
		Title:       "Yeni Takipçi",
		Message:     fmt.Sprintf("%s seni takip etmeye başladı.", follower.DisplayName),
		RelatedID:   &relatedID,
		RelatedType: &relatedType,
		ActionURL:   &actionURL,
	})
	return err
}

// NotifyNewComment tells an activity's creator about a new comment.
// Commenting on your own activity creates nothing; that is a success.
func (s *Service) NotifyNewComment(ctx context.Context, activityID, commenterID uuid.UUID, comment string) error {
	activity, err := s.directory.Activity(ctx, activityID)
	if err != nil {
		s.logger.Error("comment notify: activity lookup failed",
			zap.Error(err),
			zap.String("activity_id", activityID.String()),
		)
		return fmt.Errorf("resolve activity: %w", err)
	}

	if activity.CreatorID == commenterID {
		return nil
	}

	commenter, err := s.directory.Profile(ctx, commenterID)
	if err != nil {
		s.logger.Error("comment notify: profile lookup failed",
			zap.Error(err),
			zap.String("commenter_id", commenterID.String()),
		)
		return fmt.Errorf("resolve commenter: %w", err)
	}

	relatedID := activityID
	relatedType := db.RelatedActivity
	actionURL := "/activities/" + activityID.String()

	_, err = s.Create(ctx, db.NotificationInput{
		UserID:      activity.CreatorID,
		Type:        db.TypeSocialInteraction,
		Title:       "Yeni Yorum",
		Message:     fmt.Sprintf("%s, %s etkinliğine yorum yaptı: %q", commenter.DisplayName, activity.Title, truncate(comment, 100)),
		RelatedID:   &relatedID,
		RelatedType: &relatedType,
		ActionURL:   &actionURL,
	})
	return err
}

func (s *Service) buildForAll(userIDs []uuid.UUID, typ db.Type, title, message string, activityID uuid.UUID) []db.NotificationInput {
	actionURL := "/activities/" + activityID.String()
	relatedType := db.RelatedActivity

	inputs := make([]db.NotificationInput, 0, len(userIDs))
	for _, userID := range userIDs {
		relatedID := activityID
		inputs = append(inputs, db.NotificationInput{
			UserID:      userID,
			Type:        typ,
			Title:       title,
			Message:     message,
			RelatedID:   &relatedID,
			RelatedType: &relatedType,
			ActionURL:   &actionURL,
		})
	}
	return inputs
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
