package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return home
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Relay.Pane != "clawlink-agent" {
		t.Errorf("default pane = %q", cfg.Relay.Pane)
	}
	if cfg.Mail.Enabled || cfg.Line.Enabled || cfg.Telegram.Enabled {
		t.Error("transports enabled by default")
	}
	if cfg.PromptPolicy() != PromptPermissive {
		t.Errorf("default policy = %q", cfg.PromptPolicy())
	}
}

func TestLoadFullConfig(t *testing.T) {
	home := writeConfig(t, `
[relay]
pane = "my-agent"
project = "widget"
workdir = "/srv/widget"

[prompt]
default = "conservative"

[mail]
enabled = true
imap_host = "imap.example.com"
imap_port = 993
imap_user = "bot@example.com"
imap_password = "hunter2"
smtp_host = "smtp.example.com"
smtp_port = 587
from = "bot@example.com"
to = "op@example.com"
allowed_senders = ["op@example.com", "backup@example.com"]
`)
	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Relay.Pane != "my-agent" || cfg.Relay.Project != "widget" {
		t.Errorf("relay = %+v", cfg.Relay)
	}
	if cfg.PromptPolicy() != PromptConservative {
		t.Errorf("policy = %q", cfg.PromptPolicy())
	}
	if !cfg.Mail.Enabled || cfg.Mail.IMAPHost != "imap.example.com" {
		t.Errorf("mail = %+v", cfg.Mail)
	}
	if !cfg.MailAllowed("BACKUP@example.com") {
		t.Error("whitelisted sender rejected")
	}
	if cfg.MailAllowed("mallory@example.com") {
		t.Error("stranger accepted")
	}
}

func TestValidateMissingMailCredentials(t *testing.T) {
	home := writeConfig(t, `
[mail]
enabled = true
imap_host = "imap.example.com"
`)
	_, err := Load(home)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "mail.imap_user") {
		t.Errorf("error does not name the missing field: %v", err)
	}
}

func TestValidateBadPromptPolicy(t *testing.T) {
	home := writeConfig(t, `
[prompt]
default = "reckless"
`)
	if _, err := Load(home); err == nil {
		t.Fatal("expected validation failure for bad prompt policy")
	}
}

func TestEnvOverrides(t *testing.T) {
	home := writeConfig(t, `
[mail]
enabled = true
imap_host = "imap.example.com"
imap_user = "bot@example.com"
smtp_host = "smtp.example.com"
from = "bot@example.com"
to = "op@example.com"
`)
	t.Setenv("CLAWLINK_IMAP_PASSWORD", "from-env")
	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mail.IMAPPass != "from-env" {
		t.Errorf("IMAPPass = %q, want env override", cfg.Mail.IMAPPass)
	}
}

func TestEnsureHomeLaysOutTree(t *testing.T) {
	home := filepath.Join(t.TempDir(), "state")
	if err := EnsureHome(home); err != nil {
		t.Fatalf("EnsureHome: %v", err)
	}
	for _, dir := range []string{SessionsDir(home), CursorsDir(home), DropDir(home)} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("missing state dir %s: %v", dir, err)
		}
	}
}
