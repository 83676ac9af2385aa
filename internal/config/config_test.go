package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "memory" || cfg.Quiz.Code != "ANNIV25QZ-0001" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.RevealAnswers() {
		t.Fatalf("expected answers revealed by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
storage:
  driver: sqlite
quiz:
  code: QZ-2
  reveal_answers: false
certificate:
  min_join_date: "1998-05-12"
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Storage.Driver != "sqlite" || cfg.Quiz.Code != "QZ-2" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.RevealAnswers() {
		t.Fatalf("expected reveal_answers=false to be honoured")
	}
	if cfg.Certificate.MinJoinDate != "1998-05-12" || cfg.Certificate.MaxJoinDate != "2025-09-05" {
		t.Fatalf("unexpected join window %q..%q", cfg.Certificate.MinJoinDate, cfg.Certificate.MaxJoinDate)
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := TTLDuration("24h", time.Minute); got != 24*time.Hour {
		t.Fatalf("expected 24h, got %v", got)
	}
	if got := TTLDuration("bogus", time.Second); got != time.Second {
		t.Fatalf("expected fallback on parse error, got %v", got)
	}
}
