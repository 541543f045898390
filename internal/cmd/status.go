package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/daemon"
	"github.com/clawplaza/clawlink/internal/queue"
	"github.com/clawplaza/clawlink/internal/style"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relay status",
	Long:  `Show daemon, session and queue state. With --watch, a live view.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "live-updating view")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if !statusWatch {
		return runRelayStatus(cmd, args)
	}
	m := newWatchModel()
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// snapshot is one refresh of the watch view.
type snapshot struct {
	daemonPID   int
	daemonAlive bool
	sessions    []sessionLine
	counts      map[queue.Status]int
	err         error
}

type sessionLine struct {
	token     string
	transport string
	project   string
	commands  int
	expired   bool
}

type tickMsg time.Time

// watchModel is the bubbletea model behind `status --watch`.
type watchModel struct {
	spin spinner.Model
	snap snapshot
}

func newWatchModel() watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return watchModel{spin: s, snap: takeSnapshot()}
}

func takeSnapshot() snapshot {
	var snap snapshot
	snap.daemonPID, snap.daemonAlive = daemon.ReadPID(config.PIDPath(home()))

	sessions, q, err := openStores()
	if err != nil {
		snap.err = err
		return snap
	}
	now := time.Now()
	recs := sessions.List()
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	for _, r := range recs {
		snap.sessions = append(snap.sessions, sessionLine{
			token:     r.Token,
			transport: r.Transport,
			project:   r.Project,
			commands:  r.CommandCount,
			expired:   r.Expired(now),
		})
	}
	snap.counts = map[queue.Status]int{}
	for _, c := range q.List() {
		snap.counts[c.Status]++
	}
	return snap
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tick())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tickMsg:
		m.snap = takeSnapshot()
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s ClawLink %s\n\n", m.spin.View(), style.Dim.Render("(q to quit)"))

	if m.snap.err != nil {
		fmt.Fprintf(&b, "%s %v\n", style.Bad.Render("✗"), m.snap.err)
		return b.String()
	}

	if m.snap.daemonAlive {
		fmt.Fprintf(&b, "%s daemon running (pid %d)\n", style.Good.Render("●"), m.snap.daemonPID)
	} else {
		fmt.Fprintf(&b, "%s daemon not running\n", style.Dim.Render("○"))
	}

	fmt.Fprintf(&b, "\n%s\n", style.Title.Render("Sessions"))
	if len(m.snap.sessions) == 0 {
		fmt.Fprintf(&b, "  %s\n", style.Dim.Render("none"))
	}
	for _, s := range m.snap.sessions {
		state := style.Good.Render("live")
		if s.expired {
			state = style.Dim.Render("expired")
		}
		fmt.Fprintf(&b, "  %s  %s  %-8s  %s  commands=%d\n",
			s.token, state, s.transport, s.project, s.commands)
	}

	fmt.Fprintf(&b, "\n%s\n", style.Title.Render("Queue"))
	any := false
	for _, s := range []queue.Status{queue.StatusQueued, queue.StatusExecuting, queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled} {
		if m.snap.counts[s] > 0 {
			fmt.Fprintf(&b, "  %-10s %d\n", s, m.snap.counts[s])
			any = true
		}
	}
	if !any {
		fmt.Fprintf(&b, "  %s\n", style.Dim.Render("empty"))
	}
	return b.String()
}
