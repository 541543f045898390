package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/clawplaza/clawlink/internal/daemon"
	"github.com/clawplaza/clawlink/internal/style"
)

var (
	notifySubject string
	notifyMessage string
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send a test notification through the configured transports",
	Long: `Mints a session token and sends a notification over every enabled
outbound transport, exactly as the pane monitor would. Use this to verify
transport configuration end to end before trusting the relay with a long
run.`,
	RunE: runNotify,
}

func init() {
	notifyCmd.Flags().StringVar(&notifySubject, "subject", "ClawLink test notification", "notification subject")
	notifyCmd.Flags().StringVar(&notifyMessage, "message", "This is a test. Reply with a command to exercise the full loop.", "notification body")
	rootCmd.AddCommand(notifyCmd)
}

func runNotify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)
	d, err := daemon.New(home(), cfg, logger)
	if err != nil {
		return err
	}
	if err := d.Controller().Notify(context.Background(), notifySubject, notifyMessage); err != nil {
		return err
	}
	fmt.Printf("%s Notification sent\n", style.Good.Render("✓"))
	return nil
}
