package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFileLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clawlink.pid")

	if err := acquirePIDFile(path); err != nil {
		t.Fatalf("acquirePIDFile: %v", err)
	}
	pid, alive := ReadPID(path)
	if pid != os.Getpid() || !alive {
		t.Errorf("ReadPID = (%d, %v), want (%d, true)", pid, alive, os.Getpid())
	}

	// A second instance must be refused while we are alive.
	if err := acquirePIDFile(path); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	releasePIDFile(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pid file not removed on release")
	}
}

func TestStalePIDFileIsTakenOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clawlink.pid")
	// A PID that is certainly dead: beyond pid_max on typical systems and
	// never ours.
	if err := os.WriteFile(path, []byte("99999999\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := acquirePIDFile(path); err != nil {
		t.Fatalf("stale pid file not taken over: %v", err)
	}
	pid, _ := ReadPID(path)
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestReadPIDGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clawlink.pid")
	if err := os.WriteFile(path, []byte("not-a-pid"), 0600); err != nil {
		t.Fatal(err)
	}
	if pid, alive := ReadPID(path); pid != 0 || alive {
		t.Errorf("ReadPID garbage = (%d, %v), want (0, false)", pid, alive)
	}
	// And a missing file.
	if pid, alive := ReadPID(filepath.Join(t.TempDir(), "absent.pid")); pid != 0 || alive {
		t.Errorf("ReadPID missing = (%d, %v)", pid, alive)
	}
}
