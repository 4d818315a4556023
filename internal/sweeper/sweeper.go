// Package sweeper is the background half of notification delivery: it
// drains scheduled notifications whose time has come and enforces the
// 30-day retention window.
package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lokalkafe/lokal-notify/internal/db"
	"github.com/lokalkafe/lokal-notify/internal/mailer"
	"github.com/lokalkafe/lokal-notify/internal/metrics"
)

// Repository is the slice of the notification store the sweeper needs.
type Repository interface {
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]*db.Notification, error)
	ClearSchedule(ctx context.Context, id uuid.UUID) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Preferences reads a user's opt-in flags.
type Preferences interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.UserPreferences, error)
}

// EmailDispatcher sends the email for one notification.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, notif *db.Notification) error
}

type Sweeper struct {
	repo   Repository
	prefs  Preferences
	email  EmailDispatcher
	config Config
	logger *zap.Logger
}

type Config struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
	BatchSize       int
	RetentionAge    time.Duration
}

func New(repo Repository, prefs Preferences, email EmailDispatcher, cfg Config, logger *zap.Logger) *Sweeper {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Minute
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 1 * time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.RetentionAge == 0 {
		cfg.RetentionAge = 30 * 24 * time.Hour
	}

	return &Sweeper{
		repo:   repo,
		prefs:  prefs,
		email:  email,
		config: cfg,
		logger: logger,
	}
}

// Start runs the sweep loops until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	poll := time.NewTicker(s.config.PollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(s.config.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-poll.C:
			s.ProcessScheduled(ctx)
		case <-cleanup.C:
			s.CleanupOld(ctx)
		}
	}
}

// ProcessScheduled picks up notifications whose scheduled time has
// elapsed, clears the schedule marker, and dispatches email for rows
// that have not been emailed yet and whose owner still opts in.
func (s *Sweeper) ProcessScheduled(ctx context.Context) {
	metrics.RecordSweep("scheduled")

	due, err := s.repo.DueScheduled(ctx, time.Now(), s.config.BatchSize)
	if err != nil {
		s.logger.Error("failed to fetch due notifications", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("processing due notifications", zap.Int("count", len(due)))

	for _, notif := range due {
		// Clear first so a crash mid-dispatch cannot replay the row forever.
		if err := s.repo.ClearSchedule(ctx, notif.ID); err != nil {
			s.logger.Error("failed to clear schedule",
				zap.Error(err),
				zap.String("notification_id", notif.ID.String()),
			)
			continue
		}

		if notif.IsEmailSent {
			continue
		}

		prefs, err := s.prefs.Get(ctx, notif.UserID)
		if err != nil {
			s.logger.Warn("preferences unavailable, skipping email",
				zap.Error(err),
				zap.String("user_id", notif.UserID.String()),
			)
			continue
		}
		if !mailer.ShouldSendEmail(notif.Type, prefs) {
			continue
		}

		if err := s.email.Dispatch(ctx, notif); err != nil {
			metrics.RecordEmail("failed")
			s.logger.Warn("scheduled email dispatch failed",
				zap.Error(err),
				zap.String("notification_id", notif.ID.String()),
			)
			continue
		}
		metrics.RecordEmail("sent")
	}
}

// CleanupOld removes every notification older than the retention
// window, read or not, for every user.
func (s *Sweeper) CleanupOld(ctx context.Context) {
	metrics.RecordSweep("retention")

	cutoff := time.Now().Add(-s.config.RetentionAge)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
		return
	}

	metrics.RecordNotificationsDeleted(deleted)
	if deleted > 0 {
		s.logger.Info("retention sweep complete",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
