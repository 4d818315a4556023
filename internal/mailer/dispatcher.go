package mailer

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lokalkafe/lokal-notify/internal/db"
)

// ShouldSendEmail is the preference gate for the email channel. The
// table is closed: unknown types never email, and absent preferences
// mean opt-in cannot be confirmed, so nothing fires.
func ShouldSendEmail(t db.Type, prefs *db.UserPreferences) bool {
	if prefs == nil {
		return false
	}

	switch t {
	case db.TypeActivityReminder24h:
		return prefs.ActivityReminders24h
	case db.TypeActivityReminder1h:
		return prefs.ActivityReminders1h
	case db.TypeActivityUpdate, db.TypeActivityCancelled:
		return prefs.ActivityUpdates
	case db.TypeNewActivity:
		return prefs.NewActivities
	case db.TypeSocialInteraction:
		return prefs.SocialNotifications
	default:
		return false
	}
}

// ProfileResolver yields the recipient's email address.
type ProfileResolver interface {
	Profile(ctx context.Context, userID uuid.UUID) (*db.Profile, error)
}

// EmailMarker records a successful dispatch on the notification row.
type EmailMarker interface {
	MarkEmailSent(ctx context.Context, id uuid.UUID) error
}

var emailTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #333;">
  <h2>{{.Title}}</h2>
  <p>{{.Message}}</p>
  {{if .Link}}<p><a href="{{.Link}}">Detaylar için tıkla</a></p>{{end}}
  <p style="color: #999; font-size: 12px;">Lokal</p>
</body>
</html>`))

type emailData struct {
	Title   string
	Message string
	Link    string
}

// Dispatcher resolves the recipient, renders the email, sends it, and
// marks the row. Every failure degrades to an error return; a failed
// email never touches the already-created notification.
type Dispatcher struct {
	profiles ProfileResolver
	marker   EmailMarker
	sender   Sender
	baseURL  string
	logger   *zap.Logger
}

// NewDispatcher creates a new email dispatcher
func NewDispatcher(profiles ProfileResolver, marker EmailMarker, sender Sender, baseURL string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		profiles: profiles,
		marker:   marker,
		sender:   sender,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// Dispatch sends the email for a notification. At-most-once: no retry
// lives here, a failure leaves is_email_sent false permanently unless
// the sweeper picks the row up again.
func (d *Dispatcher) Dispatch(ctx context.Context, notif *db.Notification) error {
	profile, err := d.profiles.Profile(ctx, notif.UserID)
	if err != nil {
		d.logger.Warn("cannot resolve recipient email",
			zap.Error(err),
			zap.String("notification_id", notif.ID.String()),
			zap.String("user_id", notif.UserID.String()),
		)
		return fmt.Errorf("resolve recipient: %w", err)
	}

	if profile.Email == "" {
		d.logger.Warn("recipient has no email address",
			zap.String("user_id", notif.UserID.String()),
		)
		return fmt.Errorf("recipient %s has no email address", notif.UserID)
	}

	email := Email{
		To:      profile.Email,
		Subject: notif.Title,
		HTML:    d.render(notif),
	}

	if err := d.sender.Send(ctx, email); err != nil {
		d.logger.Warn("email dispatch failed",
			zap.Error(err),
			zap.String("notification_id", notif.ID.String()),
		)
		return fmt.Errorf("send email: %w", err)
	}

	if err := d.marker.MarkEmailSent(ctx, notif.ID); err != nil {
		// The email went out; only the bookkeeping failed.
		return fmt.Errorf("mark email sent: %w", err)
	}

	return nil
}

func (d *Dispatcher) render(notif *db.Notification) string {
	data := emailData{
		Title:   notif.Title,
		Message: notif.Message,
	}
	if notif.ActionURL != nil && *notif.ActionURL != "" {
		data.Link = d.baseURL + *notif.ActionURL
	}

	var b strings.Builder
	if err := emailTemplate.Execute(&b, data); err != nil {
		d.logger.Error("failed to render email template", zap.Error(err))
		return fmt.Sprintf("<html><body><h2>%s</h2><p>%s</p></body></html>",
			template.HTMLEscapeString(notif.Title), template.HTMLEscapeString(notif.Message))
	}
	return b.String()
}
