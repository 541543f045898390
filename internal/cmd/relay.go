package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/clawplaza/clawlink/internal/clock"
	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/constants"
	"github.com/clawplaza/clawlink/internal/daemon"
	"github.com/clawplaza/clawlink/internal/queue"
	"github.com/clawplaza/clawlink/internal/session"
	"github.com/clawplaza/clawlink/internal/style"
	"github.com/clawplaza/clawlink/internal/token"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run and inspect the relay",
}

var relayStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the relay in the foreground",
	RunE:  runRelayStart,
}

var relayStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running relay",
	RunE:  runRelayStop,
}

var relayStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relay, session and queue state",
	RunE:  runRelayStatus,
}

var relayCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop expired sessions and old terminal commands",
	RunE:  runRelayCleanup,
}

func init() {
	relayCmd.AddCommand(relayStartCmd, relayStopCmd, relayStatusCmd, relayCleanupCmd)
	rootCmd.AddCommand(relayCmd)
}

func runRelayStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)
	d, err := daemon.New(home(), cfg, logger)
	if err != nil {
		return err
	}
	return d.Run(context.Background())
}

func runRelayStop(cmd *cobra.Command, args []string) error {
	if err := daemon.SignalStop(config.PIDPath(home())); err != nil {
		return err
	}
	fmt.Printf("%s Stop signal sent\n", style.Good.Render("✓"))
	return nil
}

// openStores opens the session and queue state for inspection commands.
func openStores() (*session.Store, *queue.Queue, error) {
	clk := clock.Real{}
	sessions, err := session.NewStore(config.SessionsDir(home()), clk, token.CryptoSource)
	if err != nil {
		return nil, nil, err
	}
	q, err := queue.Load(config.QueuePath(home()), clk)
	if err != nil {
		return nil, nil, err
	}
	return sessions, q, nil
}

func runRelayStatus(cmd *cobra.Command, args []string) error {
	sessions, q, err := openStores()
	if err != nil {
		return err
	}

	pid, alive := daemon.ReadPID(config.PIDPath(home()))
	if alive {
		fmt.Printf("%s daemon running (pid %d)\n", style.Good.Render("●"), pid)
	} else {
		fmt.Printf("%s daemon not running\n", style.Dim.Render("○"))
	}

	recs := sessions.List()
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	fmt.Printf("\n%s\n", style.Title.Render("Sessions"))
	if len(recs) == 0 {
		fmt.Printf("  %s\n", style.Dim.Render("none"))
	}
	now := clock.Real{}.Now()
	for _, r := range recs {
		state := style.Good.Render("live")
		if r.Expired(now) {
			state = style.Dim.Render("expired")
		}
		fmt.Printf("  %s  %s  %s  %s  commands=%d\n",
			r.Token, state, r.Transport, r.Project, r.CommandCount)
	}

	fmt.Printf("\n%s\n", style.Title.Render("Queue"))
	counts := map[queue.Status]int{}
	for _, c := range q.List() {
		counts[c.Status]++
	}
	if len(counts) == 0 {
		fmt.Printf("  %s\n", style.Dim.Render("empty"))
	}
	for _, s := range []queue.Status{queue.StatusQueued, queue.StatusExecuting, queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled} {
		if counts[s] > 0 {
			fmt.Printf("  %-10s %d\n", s, counts[s])
		}
	}
	return nil
}

func runRelayCleanup(cmd *cobra.Command, args []string) error {
	sessions, q, err := openStores()
	if err != nil {
		return err
	}
	expired := sessions.GC(clock.Real{}.Now())
	dropped, err := q.Cleanup(constants.QueueMaxAge)
	if err != nil {
		return err
	}
	fmt.Printf("%s Removed %d expired sessions, %d old commands\n",
		style.Good.Render("✓"), expired, dropped)
	return nil
}
