package tmux

import (
	"os/exec"
	"strings"
	"testing"
)

func hasTmux() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

func TestValidateSessionName(t *testing.T) {
	valid := []string{"clawlink-agent", "a", "A_B-9"}
	for _, name := range valid {
		if err := validateSessionName(name); err != nil {
			t.Errorf("validateSessionName(%q) = %v, want nil", name, err)
		}
	}
	invalid := []string{"", "has space", "dot.name", "colon:name", "semi;rm"}
	for _, name := range invalid {
		if err := validateSessionName(name); err == nil {
			t.Errorf("validateSessionName(%q) = nil, want error", name)
		}
	}
}

func TestHasSessionNoServer(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}
	tm := NewTmuxWithSocket("clawlink-test-noserver")
	has, err := tm.HasSession("nonexistent-session-xyz")
	if err != nil {
		t.Fatalf("HasSession: %v", err)
	}
	if has {
		t.Error("expected session to not exist")
	}
}

func TestSessionLifecycle(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}

	tm := NewTmuxWithSocket("clawlink-test")
	sessionName := "cl-test-" + strings.ReplaceAll(t.Name(), "/", "-")

	_ = tm.KillSession(sessionName)

	if err := tm.NewSessionWithCommand(sessionName, "", "cat"); err != nil {
		t.Fatalf("NewSessionWithCommand: %v", err)
	}
	defer func() { _ = tm.KillSession(sessionName) }()

	has, err := tm.HasSession(sessionName)
	if err != nil {
		t.Fatalf("HasSession: %v", err)
	}
	if !has {
		t.Error("expected session to exist after creation")
	}

	// Literal text must arrive verbatim, without key-name interpretation.
	if err := tm.SendText(sessionName, "hello Enter C-u"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	out, err := tm.CapturePane(sessionName, 50)
	if err != nil {
		t.Fatalf("CapturePane: %v", err)
	}
	if !strings.Contains(out, "hello Enter C-u") {
		t.Errorf("pane missing literal text, got:\n%s", out)
	}

	if err := tm.KillSession(sessionName); err != nil {
		t.Fatalf("KillSession: %v", err)
	}
	has, err = tm.HasSession(sessionName)
	if err != nil {
		t.Fatalf("HasSession after kill: %v", err)
	}
	if has {
		t.Error("expected session to not exist after kill")
	}
}

func TestKillSessionIdempotent(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}
	tm := NewTmuxWithSocket("clawlink-test")
	if err := tm.KillSession("cl-never-existed"); err != nil {
		t.Fatalf("KillSession on missing session: %v", err)
	}
}
