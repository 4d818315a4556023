package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lokalkafe/lokal-notify/internal/db"
)

type fakeRepo struct {
	due        []*db.Notification
	dueErr     error
	cleared    []uuid.UUID
	clearErr   error
	deleted    int64
	cutoffSeen time.Time
}

func (f *fakeRepo) DueScheduled(ctx context.Context, now time.Time, limit int) ([]*db.Notification, error) {
	if f.dueErr != nil {
		return nil, f.dueErr
	}
	return f.due, nil
}

func (f *fakeRepo) ClearSchedule(ctx context.Context, id uuid.UUID) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, id)
	return nil
}

func (f *fakeRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffSeen = cutoff
	return f.deleted, nil
}

type fakePrefs struct {
	prefs map[uuid.UUID]*db.UserPreferences
	err   error
}

func (f *fakePrefs) Get(ctx context.Context, userID uuid.UUID) (*db.UserPreferences, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.prefs[userID], nil
}

type fakeDispatcher struct {
	dispatched []*db.Notification
	err        error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, notif *db.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.dispatched = append(f.dispatched, notif)
	return nil
}

func dueNotification(userID uuid.UUID, typ db.Type, emailSent bool) *db.Notification {
	past := time.Now().Add(-time.Minute)
	return &db.Notification{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         typ,
		Category:     db.CategoryOf(typ),
		IsEmailSent:  emailSent,
		ScheduledFor: &past,
	}
}

func TestProcessScheduledDispatchesWhenOptedIn(t *testing.T) {
	userID := uuid.New()
	notif := dueNotification(userID, db.TypeActivityReminder24h, false)
	repo := &fakeRepo{due: []*db.Notification{notif}}
	prefs := &fakePrefs{prefs: map[uuid.UUID]*db.UserPreferences{
		userID: {UserID: userID, ActivityReminders24h: true},
	}}
	disp := &fakeDispatcher{}

	s := New(repo, prefs, disp, Config{}, zap.NewNop())
	s.ProcessScheduled(context.Background())

	if len(repo.cleared) != 1 || repo.cleared[0] != notif.ID {
		t.Errorf("schedule should be cleared for %s, got %v", notif.ID, repo.cleared)
	}
	if len(disp.dispatched) != 1 {
		t.Errorf("expected 1 dispatch, got %d", len(disp.dispatched))
	}
}

func TestProcessScheduledSkipsWhenPrefOff(t *testing.T) {
	userID := uuid.New()
	notif := dueNotification(userID, db.TypeActivityReminder24h, false)
	repo := &fakeRepo{due: []*db.Notification{notif}}
	prefs := &fakePrefs{prefs: map[uuid.UUID]*db.UserPreferences{
		userID: {UserID: userID, ActivityReminders24h: false},
	}}
	disp := &fakeDispatcher{}

	s := New(repo, prefs, disp, Config{}, zap.NewNop())
	s.ProcessScheduled(context.Background())

	if len(repo.cleared) != 1 {
		t.Errorf("schedule must still be cleared, got %d", len(repo.cleared))
	}
	if len(disp.dispatched) != 0 {
		t.Errorf("expected zero dispatches, got %d", len(disp.dispatched))
	}
}

func TestProcessScheduledSkipsAlreadyEmailed(t *testing.T) {
	userID := uuid.New()
	notif := dueNotification(userID, db.TypeActivityReminder1h, true)
	repo := &fakeRepo{due: []*db.Notification{notif}}
	prefs := &fakePrefs{prefs: map[uuid.UUID]*db.UserPreferences{
		userID: {UserID: userID, ActivityReminders1h: true},
	}}
	disp := &fakeDispatcher{}

	s := New(repo, prefs, disp, Config{}, zap.NewNop())
	s.ProcessScheduled(context.Background())

	if len(disp.dispatched) != 0 {
		t.Errorf("already-emailed row must not re-dispatch, got %d", len(disp.dispatched))
	}
}

func TestProcessScheduledSkipsWithoutPreferencesRow(t *testing.T) {
	notif := dueNotification(uuid.New(), db.TypeActivityReminder24h, false)
	repo := &fakeRepo{due: []*db.Notification{notif}}
	disp := &fakeDispatcher{}

	s := New(repo, &fakePrefs{prefs: map[uuid.UUID]*db.UserPreferences{}}, disp, Config{}, zap.NewNop())
	s.ProcessScheduled(context.Background())

	if len(disp.dispatched) != 0 {
		t.Errorf("missing preferences must not email, got %d", len(disp.dispatched))
	}
}

func TestProcessScheduledClearFailureSkipsDispatch(t *testing.T) {
	userID := uuid.New()
	notif := dueNotification(userID, db.TypeActivityReminder24h, false)
	repo := &fakeRepo{due: []*db.Notification{notif}, clearErr: errors.New("db down")}
	prefs := &fakePrefs{prefs: map[uuid.UUID]*db.UserPreferences{
		userID: {UserID: userID, ActivityReminders24h: true},
	}}
	disp := &fakeDispatcher{}

	s := New(repo, prefs, disp, Config{}, zap.NewNop())
	s.ProcessScheduled(context.Background())

	if len(disp.dispatched) != 0 {
		t.Errorf("dispatch must not run when the schedule cannot be cleared")
	}
}

func TestCleanupOldUsesRetentionWindow(t *testing.T) {
	repo := &fakeRepo{deleted: 7}
	s := New(repo, &fakePrefs{}, &fakeDispatcher{}, Config{RetentionAge: 30 * 24 * time.Hour}, zap.NewNop())

	before := time.Now()
	s.CleanupOld(context.Background())

	wantCutoff := before.Add(-30 * 24 * time.Hour)
	diff := repo.cutoffSeen.Sub(wantCutoff)
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", repo.cutoffSeen, wantCutoff)
	}

	// Boundary check: a 31-day-old row falls before the cutoff, a
	// 29-day-old row after it.
	day31 := time.Now().Add(-31 * 24 * time.Hour)
	day29 := time.Now().Add(-29 * 24 * time.Hour)
	if !day31.Before(repo.cutoffSeen) {
		t.Error("31-day-old row should be inside the delete range")
	}
	if !day29.After(repo.cutoffSeen) {
		t.Error("29-day-old row should be outside the delete range")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	s := New(repo, &fakePrefs{}, &fakeDispatcher{}, Config{PollInterval: 10 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancel")
	}
}
