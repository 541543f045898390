package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawplaza/clawlink/internal/constants"
	"github.com/clawplaza/clawlink/internal/queue"
	"github.com/clawplaza/clawlink/internal/style"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Inspect and maintain the command queue",
}

var commandsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued and recent commands",
	RunE:  runCommandsList,
}

var commandsStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show queue counts, or one command in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCommandsStatus,
}

var commandsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop terminal commands older than 24h",
	RunE:  runCommandsCleanup,
}

var commandsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every command from the queue",
	RunE:  runCommandsClear,
}

func init() {
	commandsCmd.AddCommand(commandsListCmd, commandsStatusCmd, commandsCleanupCmd, commandsClearCmd)
	rootCmd.AddCommand(commandsCmd)
}

func statusStyle(s queue.Status) string {
	switch s {
	case queue.StatusCompleted:
		return style.Good.Render(string(s))
	case queue.StatusFailed:
		return style.Bad.Render(string(s))
	case queue.StatusExecuting:
		return style.Warn.Render(string(s))
	default:
		return string(s)
	}
}

func runCommandsList(cmd *cobra.Command, args []string) error {
	_, q, err := openStores()
	if err != nil {
		return err
	}
	cmds := q.List()
	if len(cmds) == 0 {
		fmt.Printf("%s queue empty\n", style.Dim.Render("○"))
		return nil
	}
	for _, c := range cmds {
		preview := c.Command
		if len(preview) > 60 {
			preview = preview[:57] + "..."
		}
		fmt.Printf("%s  %-10s  %s\n", c.ID, statusStyle(c.Status), preview)
	}
	return nil
}

func runCommandsStatus(cmd *cobra.Command, args []string) error {
	_, q, err := openStores()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		c, err := q.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("ID:        %s\n", c.ID)
		fmt.Printf("Session:   %s\n", c.SessionID)
		fmt.Printf("Status:    %s\n", statusStyle(c.Status))
		fmt.Printf("Queued:    %s\n", c.QueuedAt.Format(time.RFC3339))
		if c.ExecutedAt != nil {
			fmt.Printf("Executed:  %s\n", c.ExecutedAt.Format(time.RFC3339))
		}
		if c.CompletedAt != nil {
			fmt.Printf("Completed: %s\n", c.CompletedAt.Format(time.RFC3339))
		}
		if c.FailedAt != nil {
			fmt.Printf("Failed:    %s\n", c.FailedAt.Format(time.RFC3339))
		}
		fmt.Printf("Retries:   %d/%d\n", c.Retries, c.MaxRetries)
		if c.Error != "" {
			fmt.Printf("Error:     %s\n", style.Bad.Render(c.Error))
		}
		fmt.Printf("Command:   %s\n", c.Command)
		return nil
	}

	counts := map[queue.Status]int{}
	for _, c := range q.List() {
		counts[c.Status]++
	}
	for _, s := range []queue.Status{queue.StatusQueued, queue.StatusExecuting, queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled} {
		fmt.Printf("%-10s %d\n", s, counts[s])
	}
	return nil
}

func runCommandsCleanup(cmd *cobra.Command, args []string) error {
	_, q, err := openStores()
	if err != nil {
		return err
	}
	dropped, err := q.Cleanup(constants.QueueMaxAge)
	if err != nil {
		return err
	}
	fmt.Printf("%s Removed %d commands\n", style.Good.Render("✓"), dropped)
	return nil
}

func runCommandsClear(cmd *cobra.Command, args []string) error {
	_, q, err := openStores()
	if err != nil {
		return err
	}
	n, err := q.Clear()
	if err != nil {
		return err
	}
	fmt.Printf("%s Cleared %d commands\n", style.Good.Render("✓"), n)
	return nil
}
