package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("unexpected server url %q", cfg.ServerURL)
	}
	if cfg.DefaultBudget != "HIGH" {
		t.Errorf("unexpected budget %q", cfg.DefaultBudget)
	}
	if cfg.PollIntervalMs != 2500 {
		t.Errorf("unexpected poll interval %d", cfg.PollIntervalMs)
	}
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := "server_url: https://file.example.com\nuser_id: \"9\"\npoll_interval_ms: 1000\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEEP_RESEARCH_URL", "https://env.example.com")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != "https://env.example.com" {
		t.Errorf("env should win, got %q", cfg.ServerURL)
	}
	if cfg.UserID != "9" {
		t.Errorf("expected user id from file, got %q", cfg.UserID)
	}
	if cfg.PollIntervalMs != 1000 {
		t.Errorf("expected poll interval from file, got %d", cfg.PollIntervalMs)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	in := DefaultConfig()
	in.Token = "tok"
	if err := SaveConfig(in, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	out, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if out.Token != "tok" {
		t.Errorf("expected token to round-trip, got %q", out.Token)
	}
}

func TestCredentialsNotify(t *testing.T) {
	creds := NewCredentials("", "1")
	if creds.Authenticated() {
		t.Error("empty token should not be authenticated")
	}
	notified := 0
	creds.OnChange(func() { notified++ })
	creds.SetToken("abc")
	if creds.Token() != "abc" {
		t.Errorf("unexpected token %q", creds.Token())
	}
	if notified != 1 {
		t.Errorf("expected 1 notification, got %d", notified)
	}
}
