package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clawplaza/clawlink/internal/constants"
	"github.com/clawplaza/clawlink/internal/injector"
)

// PaneSampler is the capture surface the monitor needs from the multiplexer.
type PaneSampler interface {
	HasSession(name string) (bool, error)
	CapturePane(session string, lines int) (string, error)
}

// Notifier is the outbound side the monitor triggers. The relay controller
// implements it.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// monitor watches the assistant pane for busy-to-idle transitions and emits
// one notification per transition. The idle state must hold for two
// consecutive samples before a notification fires, so a brief flicker
// between tool calls does not page the operator.
type monitor struct {
	pane     string
	project  string
	sampler  PaneSampler
	notifier Notifier
	logger   logPrinter

	wasBusy   bool
	idleRuns  int
	lastNotif time.Time
}

// logPrinter is the slice of *log.Logger the monitor uses.
type logPrinter interface {
	Printf(format string, v ...interface{})
}

func newMonitor(pane, project string, sampler PaneSampler, notifier Notifier, logger logPrinter) *monitor {
	return &monitor{pane: pane, project: project, sampler: sampler, notifier: notifier, logger: logger}
}

// run samples the pane until ctx is done.
func (m *monitor) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

// sample takes one reading and fires a notification on a confirmed
// busy-to-idle transition.
func (m *monitor) sample(ctx context.Context) {
	exists, err := m.sampler.HasSession(m.pane)
	if err != nil || !exists {
		m.wasBusy = false
		m.idleRuns = 0
		return
	}
	tail, err := m.sampler.CapturePane(m.pane, constants.CaptureLines)
	if err != nil {
		return
	}

	switch injector.Classify(tail) {
	case injector.ClassWorking:
		m.wasBusy = true
		m.idleRuns = 0
	case injector.ClassIdle:
		m.idleRuns++
		if m.wasBusy && m.idleRuns >= 2 {
			m.notify(ctx, tail)
			m.wasBusy = false
			m.idleRuns = 0
		}
	default:
		// Prompts and errors belong to the injector's confirmation loop;
		// the monitor only cares about the busy/idle edge.
		m.idleRuns = 0
	}
}

// notify sends the idle notification with the pane tail as context.
func (m *monitor) notify(ctx context.Context, tail string) {
	subject := fmt.Sprintf("%s is waiting for you", m.project)
	if m.project == "" {
		subject = "Assistant is waiting for you"
	}
	body := "The assistant finished and is waiting for input.\n\nLast output:\n" + excerpt(tail, 20)
	if err := m.notifier.Notify(ctx, subject, body); err != nil {
		m.logger.Printf("monitor: notification failed: %v", err)
		return
	}
	m.lastNotif = time.Now()
}

// excerpt returns the last n lines of a capture, ignoring trailing blank
// lines.
func excerpt(tail string, n int) string {
	lines := strings.Split(strings.TrimRight(tail, "\n"), "\n")
	var kept []string
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) == "" && len(kept) == 0 {
			continue
		}
		kept = append([]string{lines[i]}, kept...)
	}
	return strings.Join(kept, "\n")
}
