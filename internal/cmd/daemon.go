package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/daemon"
	"github.com/clawplaza/clawlink/internal/style"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background relay process",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relay in the background",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background relay",
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the background relay",
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background relay is running",
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonRestartCmd, daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	// Fail fast on config errors before forking; the detached child would
	// only be able to report them to the log file.
	if _, err := loadConfig(); err != nil {
		return err
	}
	if pid, alive := daemon.ReadPID(config.PIDPath(home())); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	if err := config.EnsureHome(home()); err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate binary: %w", err)
	}
	logFile, err := os.OpenFile(config.LogPath(home()), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer logFile.Close()

	child := exec.Command(self, "--home", home(), "relay", "start")
	child.Stdout = logFile
	child.Stderr = logFile
	child.Stdin = nil
	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	// Detach: the child writes its own PID file; we do not wait on it.
	if err := child.Process.Release(); err != nil {
		return err
	}
	fmt.Printf("%s Daemon starting (log: %s)\n", style.Good.Render("✓"), config.LogPath(home()))
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	pidPath := config.PIDPath(home())
	if err := daemon.SignalStop(pidPath); err != nil {
		return err
	}
	// Wait briefly for the drain so "stop && start" sequences work.
	for i := 0; i < 50; i++ {
		if _, alive := daemon.ReadPID(pidPath); !alive {
			fmt.Printf("%s Daemon stopped\n", style.Good.Render("✓"))
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Printf("%s Daemon still draining, check again shortly\n", style.Warn.Render("!"))
	return nil
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	if _, alive := daemon.ReadPID(config.PIDPath(home())); alive {
		if err := runDaemonStop(cmd, args); err != nil {
			return err
		}
	}
	return runDaemonStart(cmd, args)
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	pid, alive := daemon.ReadPID(config.PIDPath(home()))
	if alive {
		fmt.Printf("%s running (pid %d)\n", style.Good.Render("●"), pid)
		return nil
	}
	fmt.Printf("%s not running\n", style.Dim.Render("○"))
	return fmt.Errorf("daemon not running")
}
