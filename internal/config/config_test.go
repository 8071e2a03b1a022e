package config

import (
	"os"
	"path/filepath"
	"testing"

	"go-twitch-archive/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	content := `
ClientID = "abc123"
ClientSecret = "shhh"
SavePath = "/tmp/vods"
DatabasePath = "/tmp/vods/archive_db"
Filter = "archive"
Limit = 50
ChatLogs = true
ApiDelayMs = 250
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ClientID != "abc123" {
		t.Errorf("ClientID = %q, want %q", cfg.ClientID, "abc123")
	}
	if cfg.SavePath != "/tmp/vods" {
		t.Errorf("SavePath = %q, want %q", cfg.SavePath, "/tmp/vods")
	}
	if cfg.Filter != "archive" {
		t.Errorf("Filter = %q, want %q", cfg.Filter, "archive")
	}
	if cfg.Limit != 50 {
		t.Errorf("Limit = %d, want 50", cfg.Limit)
	}
	if !cfg.ChatLogs {
		t.Error("ChatLogs = false, want true")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("LoadConfig on missing file returned nil error")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.toml")

	want := models.Config{
		ClientID:     "roundtrip-id",
		ClientSecret: "roundtrip-secret",
		SavePath:     "/data/twitch",
		DatabasePath: "/data/twitch/archive_db",
		Filter:       "highlight",
		Limit:        25,
		ChatLogs:     true,
		ApiDelayMs:   100,
	}

	if err := SaveConfig(configPath, want); err != nil {
		t.Fatalf("SaveConfig returned error: %v", err)
	}

	got, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig after save returned error: %v", err)
	}

	if got != want {
		t.Errorf("round-tripped config = %+v, want %+v", got, want)
	}
}
