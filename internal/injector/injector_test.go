package injector

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/clawplaza/clawlink/internal/clock"
	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/constants"
)

// fakeDriver scripts pane captures and records every operation.
type fakeDriver struct {
	ops      []string
	captures []string // consumed one per CapturePane call; last repeats
	capIdx   int
	capCalls int
	sessions map[string]bool
	startErr map[string]error // command → error for NewSessionWithCommand
}

func newFakeDriver(captures ...string) *fakeDriver {
	return &fakeDriver{captures: captures, sessions: map[string]bool{"clawlink-agent": true}}
}

func (f *fakeDriver) IsAvailable() bool { return true }

func (f *fakeDriver) HasSession(name string) (bool, error) { return f.sessions[name], nil }

func (f *fakeDriver) NewSessionWithCommand(name, workDir, command string) error {
	if err := f.startErr[command]; err != nil {
		f.ops = append(f.ops, "start-failed:"+command)
		return err
	}
	f.sessions[name] = true
	f.ops = append(f.ops, "start:"+command)
	return nil
}

func (f *fakeDriver) SendText(session, text string) error {
	f.ops = append(f.ops, "text:"+text)
	return nil
}

func (f *fakeDriver) SendKey(session, key string) error {
	f.ops = append(f.ops, "key:"+key)
	return nil
}

func (f *fakeDriver) CapturePane(session string, lines int) (string, error) {
	f.capCalls++
	if f.capIdx < len(f.captures) {
		c := f.captures[f.capIdx]
		f.capIdx++
		return c, nil
	}
	if len(f.captures) > 0 {
		return f.captures[len(f.captures)-1], nil
	}
	return "", nil
}

func testRelay() config.RelayConfig {
	return config.RelayConfig{
		Pane:         "clawlink-agent",
		AssistantCmd: "claude --dangerously-skip-permissions",
	}
}

func newTestInjector(d *fakeDriver, policy config.PromptPolicy) (*Injector, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	logger := log.New(io.Discard, "", 0)
	return New(d, clk, logger, testRelay(), policy), clk
}

const idleTail = "done\n│ > "

func TestInjectHappyPathWithConsent(t *testing.T) {
	consent := "Do you want to proceed?\n❯ 1. Yes\n  2. Yes, and don't ask again"
	d := newFakeDriver(consent, idleTail)
	in, _ := newTestInjector(d, config.PromptPermissive)

	if err := in.Inject(context.Background(), "fix the failing test"); err != nil {
		t.Fatalf("Inject: %v", err)
	}

	want := []string{
		"key:C-u",
		"text:fix the failing test",
		"key:Enter",
		"text:2", // permissive answers "don't ask again"
		"key:Enter",
	}
	if len(d.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", d.ops, want)
	}
	for i := range want {
		if d.ops[i] != want[i] {
			t.Errorf("op[%d] = %q, want %q", i, d.ops[i], want[i])
		}
	}
}

func TestInjectConservativePolicy(t *testing.T) {
	consent := "Do you want to proceed?\n❯ 1. Yes\n  2. Yes, and don't ask again"
	d := newFakeDriver(consent, idleTail)
	in, _ := newTestInjector(d, config.PromptConservative)

	if err := in.Inject(context.Background(), "apply the patch"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	for _, op := range d.ops {
		if op == "text:2" {
			t.Fatal("conservative policy answered 2")
		}
	}
	found := false
	for _, op := range d.ops {
		if op == "text:1" {
			found = true
		}
	}
	if !found {
		t.Errorf("conservative policy never answered 1: %v", d.ops)
	}
}

func TestInjectConfirmationFree(t *testing.T) {
	d := newFakeDriver("✻ Working… 3s", idleTail)
	in, _ := newTestInjector(d, config.PromptPermissive)

	if err := in.Inject(context.Background(), "show me the test output"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	// No prompt answers: just clear, type, commit.
	want := []string{"key:C-u", "text:show me the test output", "key:Enter"}
	if len(d.ops) != len(want) {
		t.Fatalf("ops = %v", d.ops)
	}
}

func TestInjectTimeout(t *testing.T) {
	// The assistant is wedged: nothing recognizable ever appears.
	d := newFakeDriver("some output that never settles")
	in, clk := newTestInjector(d, config.PromptPermissive)

	err := in.Inject(context.Background(), "anything")
	if !errors.Is(err, ErrInjectionTimeout) {
		t.Fatalf("expected ErrInjectionTimeout, got %v", err)
	}
	if d.capIdx == 0 && len(d.captures) > 0 {
		t.Error("confirmation loop never captured the pane")
	}
	// All timed pauses went through the injected clock.
	if len(clk.Sleeps) == 0 {
		t.Error("no sleeps recorded on the fake clock")
	}
}

func TestInjectErrorSurfaced(t *testing.T) {
	d := newFakeDriver("Error: build broke\nexit status 2")
	in, _ := newTestInjector(d, config.PromptPermissive)

	err := in.Inject(context.Background(), "build it")
	if !errors.Is(err, ErrAssistantError) {
		t.Fatalf("expected ErrAssistantError, got %v", err)
	}
}

func TestInjectYesNoAndPressEnter(t *testing.T) {
	d := newFakeDriver("Overwrite? [Y/n]", "Press Enter to continue", idleTail)
	in, _ := newTestInjector(d, config.PromptPermissive)

	if err := in.Inject(context.Background(), "overwrite the config"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	want := []string{
		"key:C-u",
		"text:overwrite the config",
		"key:Enter",
		"text:y",
		"key:Enter",
		"key:Enter", // press-enter prompt
	}
	if len(d.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", d.ops, want)
	}
	for i := range want {
		if d.ops[i] != want[i] {
			t.Errorf("op[%d] = %q, want %q", i, d.ops[i], want[i])
		}
	}
}

// A crash between dispatch and completion re-delivers the command. Because
// every injection clears the input buffer first, the duplicate overwrites
// instead of appending.
func TestInjectDuplicateSafe(t *testing.T) {
	d := newFakeDriver(idleTail)
	in, _ := newTestInjector(d, config.PromptPermissive)

	for i := 0; i < 2; i++ {
		if err := in.Inject(context.Background(), "run the tests"); err != nil {
			t.Fatalf("Inject #%d: %v", i+1, err)
		}
	}
	// Each delivery starts with a clear.
	textAt := -1
	for i, op := range d.ops {
		if op == "text:run the tests" {
			if textAt == -1 {
				textAt = i
			}
			if i == 0 || d.ops[i-1] != "key:C-u" {
				t.Errorf("typing at op %d not preceded by Ctrl-U: %v", i, d.ops)
			}
		}
	}
	if textAt == -1 {
		t.Fatal("command never typed")
	}
}

func TestBootstrapFallback(t *testing.T) {
	d := newFakeDriver(idleTail)
	d.sessions = map[string]bool{} // pane missing
	d.startErr = map[string]error{"claude --dangerously-skip-permissions": errors.New("not found")}

	clk := clock.NewFake(time.Now())
	logger := log.New(io.Discard, "", 0)
	relay := testRelay()
	relay.AssistantFallback = "/usr/local/bin/claude --dangerously-skip-permissions"
	in := New(d, clk, logger, relay, config.PromptPermissive)

	if err := in.EnsurePane(); err != nil {
		t.Fatalf("EnsurePane: %v", err)
	}
	sawFallback := false
	for _, op := range d.ops {
		if op == "start:/usr/local/bin/claude --dangerously-skip-permissions" {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Errorf("fallback startup never attempted: %v", d.ops)
	}
}

func TestCancelUsesCtrlUOnly(t *testing.T) {
	d := newFakeDriver()
	in, _ := newTestInjector(d, config.PromptPermissive)

	if err := in.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(d.ops) != 1 || d.ops[0] != "key:C-u" {
		t.Errorf("Cancel ops = %v, want only Ctrl-U", d.ops)
	}
}

func TestInjectTimeoutAttemptBudget(t *testing.T) {
	d := newFakeDriver("✻ Working… forever")
	in, _ := newTestInjector(d, config.PromptPermissive)

	if err := in.Inject(context.Background(), "never finishes"); !errors.Is(err, ErrInjectionTimeout) {
		t.Fatalf("expected ErrInjectionTimeout, got %v", err)
	}
	if d.capCalls != constants.ConfirmAttempts {
		t.Errorf("captured %d times, want exactly %d", d.capCalls, constants.ConfirmAttempts)
	}
}
