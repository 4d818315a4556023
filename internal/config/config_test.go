package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.EmailProvider != "log" {
		t.Errorf("expected default email provider log, got %s", cfg.EmailProvider)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("expected default retention 30 days, got %d", cfg.RetentionDays)
	}
	if cfg.SweepIntervalSeconds != 60 {
		t.Errorf("expected default sweep interval 60s, got %d", cfg.SweepIntervalSeconds)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("EMAIL_PROVIDER", "sink")
	t.Setenv("EMAIL_SINK_URL", "http://mailsink:2525/send")
	t.Setenv("RETENTION_DAYS", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.DBHost != "db.internal" {
		t.Errorf("expected db host db.internal, got %s", cfg.DBHost)
	}
	if cfg.EmailProvider != "sink" {
		t.Errorf("expected email provider sink, got %s", cfg.EmailProvider)
	}
	if cfg.EmailSinkURL != "http://mailsink:2525/send" {
		t.Errorf("unexpected sink url %s", cfg.EmailSinkURL)
	}
	if cfg.RetentionDays != 14 {
		t.Errorf("expected retention 14 days, got %d", cfg.RetentionDays)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid PORT")
	}
}

func TestLoadInvalidEmailProvider(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "smtp")

	if _, err := Load(); err == nil {
		t.Error("expected error for unknown EMAIL_PROVIDER")
	}
}

func TestLoadSinkProviderRequiresURL(t *testing.T) {
	t.Setenv("EMAIL_PROVIDER", "sink")
	t.Setenv("EMAIL_SINK_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when sink provider has no URL")
	}
}
