package config

import (
	"os"
	"path/filepath"

	"github.com/clawplaza/clawlink/internal/constants"
)

// Home returns the ClawLink state directory: $CLAWLINK_HOME if set, else
// ~/.clawlink.
func Home() string {
	if dir := os.Getenv("CLAWLINK_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Last resort: relative state dir in the working directory.
		return ".clawlink"
	}
	return filepath.Join(home, ".clawlink")
}

// EnsureHome creates the state directory tree.
func EnsureHome(home string) error {
	for _, dir := range []string{
		home,
		filepath.Join(home, constants.DirSessions),
		filepath.Join(home, constants.DirCursors),
		filepath.Join(home, constants.DirDrop),
	} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}

// SessionsDir returns the session-record directory within home.
func SessionsDir(home string) string {
	return filepath.Join(home, constants.DirSessions)
}

// CursorsDir returns the transport-cursor directory within home.
func CursorsDir(home string) string {
	return filepath.Join(home, constants.DirCursors)
}

// DropDir returns the degraded-mode drop folder within home.
func DropDir(home string) string {
	return filepath.Join(home, constants.DirDrop)
}

// QueuePath returns the durable queue file within home.
func QueuePath(home string) string {
	return filepath.Join(home, constants.FileQueueJSON)
}

// PIDPath returns the daemon PID-file within home.
func PIDPath(home string) string {
	return filepath.Join(home, constants.FilePID)
}

// LogPath returns the daemon log file within home.
func LogPath(home string) string {
	return filepath.Join(home, constants.FileDaemonLog)
}

// ConfigPath returns the config.toml path within home.
func ConfigPath(home string) string {
	return filepath.Join(home, constants.FileConfigTOML)
}
