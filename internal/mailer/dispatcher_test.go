package mailer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lokalkafe/lokal-notify/internal/db"
)

func allOnPrefs() *db.UserPreferences {
	return &db.UserPreferences{
		EmailNotifications:   true,
		PushNotifications:    true,
		ActivityReminders24h: true,
		ActivityReminders1h:  true,
		ActivityUpdates:      true,
		NewActivities:        true,
		SocialNotifications:  true,
	}
}

func TestShouldSendEmail(t *testing.T) {
	tests := []struct {
		name  string
		typ   db.Type
		prefs func() *db.UserPreferences
		want  bool
	}{
		{"24h reminder enabled", db.TypeActivityReminder24h, allOnPrefs, true},
		{"1h reminder enabled", db.TypeActivityReminder1h, allOnPrefs, true},
		{"update enabled", db.TypeActivityUpdate, allOnPrefs, true},
		{"cancellation uses update toggle", db.TypeActivityCancelled, allOnPrefs, true},
		{"new activity enabled", db.TypeNewActivity, allOnPrefs, true},
		{"social enabled", db.TypeSocialInteraction, allOnPrefs, true},
		{
			name: "24h reminder disabled",
			typ:  db.TypeActivityReminder24h,
			prefs: func() *db.UserPreferences {
				p := allOnPrefs()
				p.ActivityReminders24h = false
				return p
			},
			want: false,
		},
		{
			name: "cancellation follows disabled update toggle",
			typ:  db.TypeActivityCancelled,
			prefs: func() *db.UserPreferences {
				p := allOnPrefs()
				p.ActivityUpdates = false
				return p
			},
			want: false,
		},
		{"unknown type never emails", db.Type("lottery_win"), allOnPrefs, false},
		{"generic reminder type never emails", db.TypeActivityReminder, allOnPrefs, false},
		{"system type never emails", db.TypeSystem, allOnPrefs, false},
		{"voucher type never emails", db.TypeVoucherEarned, allOnPrefs, false},
		{"nil preferences never email", db.TypeSocialInteraction, func() *db.UserPreferences { return nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldSendEmail(tt.typ, tt.prefs()); got != tt.want {
				t.Errorf("ShouldSendEmail(%s) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

type fakeProfiles struct {
	profile *db.Profile
	err     error
}

func (f *fakeProfiles) Profile(ctx context.Context, userID uuid.UUID) (*db.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type fakeMarker struct {
	marked []uuid.UUID
	err    error
}

func (f *fakeMarker) MarkEmailSent(ctx context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.marked = append(f.marked, id)
	return nil
}

type fakeSender struct {
	sent []Email
	err  error
}

func (f *fakeSender) Send(ctx context.Context, email Email) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

func testNotification() *db.Notification {
	action := "/activities/42"
	return &db.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Title:     "Etkinlik Hatırlatması",
		Message:   "Kahve Tadımı etkinliği yarın başlıyor!",
		Type:      db.TypeActivityReminder24h,
		Category:  db.CategoryActivity,
		ActionURL: &action,
	}
}

func TestDispatcherSendsAndMarks(t *testing.T) {
	profiles := &fakeProfiles{profile: &db.Profile{Email: "ayse@example.com", DisplayName: "Ayşe"}}
	marker := &fakeMarker{}
	sender := &fakeSender{}
	d := NewDispatcher(profiles, marker, sender, "https://lokal.example.com/", zap.NewNop())

	notif := testNotification()
	if err := d.Dispatch(context.Background(), notif); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}

	email := sender.sent[0]
	if email.To != "ayse@example.com" {
		t.Errorf("To = %q, want ayse@example.com", email.To)
	}
	if email.Subject != notif.Title {
		t.Errorf("Subject = %q, want %q", email.Subject, notif.Title)
	}
	if !strings.Contains(email.HTML, notif.Message) {
		t.Errorf("HTML body missing message: %s", email.HTML)
	}
	if !strings.Contains(email.HTML, "https://lokal.example.com/activities/42") {
		t.Errorf("HTML body missing absolute action link: %s", email.HTML)
	}

	if len(marker.marked) != 1 || marker.marked[0] != notif.ID {
		t.Errorf("expected notification %s marked email-sent, got %v", notif.ID, marker.marked)
	}
}

func TestDispatcherMissingProfile(t *testing.T) {
	profiles := &fakeProfiles{err: db.ErrNotFound}
	marker := &fakeMarker{}
	sender := &fakeSender{}
	d := NewDispatcher(profiles, marker, sender, "https://lokal.example.com", zap.NewNop())

	if err := d.Dispatch(context.Background(), testNotification()); err == nil {
		t.Fatal("expected error for missing profile")
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected zero sends, got %d", len(sender.sent))
	}
	if len(marker.marked) != 0 {
		t.Errorf("expected zero marks, got %d", len(marker.marked))
	}
}

func TestDispatcherEmptyEmailAddress(t *testing.T) {
	profiles := &fakeProfiles{profile: &db.Profile{Email: ""}}
	sender := &fakeSender{}
	d := NewDispatcher(profiles, &fakeMarker{}, sender, "", zap.NewNop())

	if err := d.Dispatch(context.Background(), testNotification()); err == nil {
		t.Fatal("expected error for empty email address")
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected zero sends, got %d", len(sender.sent))
	}
}

func TestDispatcherSendFailureDoesNotMark(t *testing.T) {
	profiles := &fakeProfiles{profile: &db.Profile{Email: "mehmet@example.com"}}
	marker := &fakeMarker{}
	sender := &fakeSender{err: errors.New("sink down")}
	d := NewDispatcher(profiles, marker, sender, "", zap.NewNop())

	if err := d.Dispatch(context.Background(), testNotification()); err == nil {
		t.Fatal("expected error when send fails")
	}
	if len(marker.marked) != 0 {
		t.Errorf("is_email_sent must stay false after a failed send, got %d marks", len(marker.marked))
	}
}

func TestDispatcherNoActionURL(t *testing.T) {
	profiles := &fakeProfiles{profile: &db.Profile{Email: "ali@example.com"}}
	sender := &fakeSender{}
	d := NewDispatcher(profiles, &fakeMarker{}, sender, "https://lokal.example.com", zap.NewNop())

	notif := testNotification()
	notif.ActionURL = nil
	if err := d.Dispatch(context.Background(), notif); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if strings.Contains(sender.sent[0].HTML, "<a href") {
		t.Errorf("HTML body should have no link without action_url: %s", sender.sent[0].HTML)
	}
}
