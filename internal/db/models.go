package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification. The set is closed: anything outside
// it is rejected at the API boundary and never emails.
type Type string

const (
	TypeActivityReminder    Type = "activity_reminder"
	TypeActivityReminder24h Type = "activity_reminder_24h"
	TypeActivityReminder1h  Type = "activity_reminder_1h"
	TypeActivityUpdate      Type = "activity_update"
	TypeActivityCancelled   Type = "activity_cancelled"
	TypeNewActivity         Type = "new_activity"
	TypeSocialInteraction   Type = "social_interaction"
	TypeGroupInvite         Type = "group_invite"
	TypeVoucherEarned       Type = "voucher_earned"
	TypeWelcome             Type = "welcome"
	TypeSystem              Type = "system"
)

// Category is the coarse grouping the UI filter tabs use.
type Category string

const (
	CategoryActivity Category = "activity"
	CategorySocial   Category = "social"
	CategorySystem   Category = "system"
)

// CategoryOf derives the category from the type. The derivation is the
// single source of truth: inserts always compute it here and never
// trust caller input.
func CategoryOf(t Type) Category {
	switch {
	case strings.HasPrefix(string(t), "activity_"):
		return CategoryActivity
	case t == TypeSocialInteraction:
		return CategorySocial
	default:
		return CategorySystem
	}
}

// RelatedType names the kind of entity a notification loosely points
// at. The reference is advisory, not a foreign key.
type RelatedType string

const (
	RelatedActivity RelatedType = "activity"
	RelatedGroup    RelatedType = "group"
	RelatedUser     RelatedType = "user"
	RelatedComment  RelatedType = "comment"
)

// Filter selects a slice of a user's notifications when listing.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterUnread   Filter = "unread"
	FilterActivity Filter = "activity"
	FilterSocial   Filter = "social"
)

// Valid reports whether f is one of the supported list filters.
func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterUnread, FilterActivity, FilterSocial:
		return true
	}
	return false
}

// Notification is a row in the notifications table.
type Notification struct {
	ID           uuid.UUID    `json:"id"`
	UserID       uuid.UUID    `json:"user_id"`
	Title        string       `json:"title"`
	Message      string       `json:"message"`
	Type         Type         `json:"type"`
	Category     Category     `json:"category"`
	IsRead       bool         `json:"is_read"`
	IsEmailSent  bool         `json:"is_email_sent"`
	RelatedID    *uuid.UUID   `json:"related_id,omitempty"`
	RelatedType  *RelatedType `json:"related_type,omitempty"`
	ActionURL    *string      `json:"action_url,omitempty"`
	ScheduledFor *time.Time   `json:"scheduled_for,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NotificationInput is the construction payload for a notification.
// Category is deliberately absent: it is derived from Type at insert.
type NotificationInput struct {
	UserID       uuid.UUID
	Type         Type
	Title        string
	Message      string
	RelatedID    *uuid.UUID
	RelatedType  *RelatedType
	ActionURL    *string
	ScheduledFor *time.Time
}

// UserPreferences holds a user's notification opt-ins. The row is
// owned by the platform; this service only reads it.
type UserPreferences struct {
	UserID                uuid.UUID `json:"user_id"`
	EmailNotifications    bool      `json:"email_notifications"`
	PushNotifications     bool      `json:"push_notifications"`
	ActivityReminders24h  bool      `json:"activity_reminders_24h"`
	ActivityReminders1h   bool      `json:"activity_reminders_1h"`
	ActivityUpdates       bool      `json:"activity_updates"`
	NewActivities         bool      `json:"new_activities"`
	SocialNotifications   bool      `json:"social_notifications"`
	MarketingEmails       bool      `json:"marketing_emails"`
	PreferredReminderTime string    `json:"preferred_reminder_time"`
	Timezone              string    `json:"timezone"`
}

// Activity is the read-only view of an activity this service needs for
// fan-out: audience resolution and message copy.
type Activity struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatorID uuid.UUID `json:"creator_id"`
	StartsAt  time.Time `json:"starts_at"`
}

// Profile is the read-only slice of a platform profile used for email
// addressing and display names in notification copy.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
}
