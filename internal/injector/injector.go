// Package injector delivers operator commands into the assistant's terminal
// and autonomously answers the interactive confirmation prompts the assistant
// raises afterwards.
//
// The injection discipline is clear, type, commit: Ctrl-U first so whatever
// half-typed text sits in the assistant's input buffer is replaced rather
// than appended to. That same discipline is what makes crash-redelivery safe
// — a duplicate burst overwrites instead of concatenating.
package injector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/clawplaza/clawlink/internal/clock"
	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/constants"
)

// Common errors.
var (
	// ErrInjectionTimeout means the confirmation loop exhausted its
	// attempts without reaching an idle prompt.
	ErrInjectionTimeout = errors.New("injection timed out waiting for idle prompt")

	// ErrPaneMissing means the target pane does not exist and could not be
	// bootstrapped.
	ErrPaneMissing = errors.New("target pane missing")

	// ErrMultiplexerUnavailable means tmux itself cannot be invoked.
	ErrMultiplexerUnavailable = errors.New("terminal multiplexer unavailable")

	// ErrAssistantError means the assistant reported a failure for the
	// injected command.
	ErrAssistantError = errors.New("assistant reported an error")
)

// PaneDriver is the multiplexer surface the injector needs. *tmux.Tmux is
// the production implementation; tests use a scripted fake.
type PaneDriver interface {
	IsAvailable() bool
	HasSession(name string) (bool, error)
	NewSessionWithCommand(name, workDir, command string) error
	SendText(session, text string) error
	SendKey(session, key string) error
	CapturePane(session string, lines int) (string, error)
}

// Injector drives one named pane.
type Injector struct {
	driver PaneDriver
	clk    clock.Clock
	logger *log.Logger

	pane     string
	workDir  string
	startCmd string
	fallback string
	policy   config.PromptPolicy
}

// New builds an injector for the configured pane.
func New(driver PaneDriver, clk clock.Clock, logger *log.Logger, relay config.RelayConfig, policy config.PromptPolicy) *Injector {
	return &Injector{
		driver:   driver,
		clk:      clk,
		logger:   logger,
		pane:     relay.Pane,
		workDir:  relay.WorkDir,
		startCmd: relay.AssistantCmd,
		fallback: relay.AssistantFallback,
		policy:   policy,
	}
}

// Pane returns the target pane name.
func (in *Injector) Pane() string { return in.pane }

// EnsurePane checks that the named session exists, spawning a detached
// assistant session when it does not. The fallback command is tried once if
// the primary fails to start.
func (in *Injector) EnsurePane() error {
	if !in.driver.IsAvailable() {
		return ErrMultiplexerUnavailable
	}
	exists, err := in.driver.HasSession(in.pane)
	if err != nil {
		return fmt.Errorf("checking pane %s: %w", in.pane, err)
	}
	if exists {
		return nil
	}
	if in.startCmd == "" {
		return fmt.Errorf("%w: %s (no assistant_cmd configured to bootstrap it)", ErrPaneMissing, in.pane)
	}
	in.logger.Printf("injector: pane %s missing, starting assistant: %s", in.pane, in.startCmd)
	if err := in.driver.NewSessionWithCommand(in.pane, in.workDir, in.startCmd); err == nil {
		return nil
	} else if in.fallback == "" {
		return fmt.Errorf("%w: starting %q: %v", ErrPaneMissing, in.startCmd, err)
	}
	in.logger.Printf("injector: primary startup failed, trying fallback: %s", in.fallback)
	if err := in.driver.NewSessionWithCommand(in.pane, in.workDir, in.fallback); err != nil {
		return fmt.Errorf("%w: fallback %q: %v", ErrPaneMissing, in.fallback, err)
	}
	return nil
}

// Inject delivers one command and runs the confirmation loop to completion.
// The payload is sent verbatim; no shell ever re-quotes it.
func (in *Injector) Inject(ctx context.Context, command string) error {
	if err := in.EnsurePane(); err != nil {
		return err
	}

	// Clear, type, commit. A single atomic send would concatenate with any
	// text already sitting in the assistant's input buffer.
	if err := in.driver.SendKey(in.pane, "C-u"); err != nil {
		return fmt.Errorf("clearing input: %w", err)
	}
	in.clk.Sleep(constants.ClearTypeDelay)
	if err := in.driver.SendText(in.pane, command); err != nil {
		return fmt.Errorf("typing command: %w", err)
	}
	in.clk.Sleep(constants.TypeCommitDelay)
	if err := in.driver.SendKey(in.pane, "Enter"); err != nil {
		return fmt.Errorf("committing command: %w", err)
	}
	in.clk.Sleep(constants.CommitSettleDelay)

	return in.confirmLoop(ctx)
}

// confirmLoop samples the pane tail and answers prompts until the assistant
// is idle again, errors out, or the attempt budget is spent.
func (in *Injector) confirmLoop(ctx context.Context) error {
	for attempt := 0; attempt < constants.ConfirmAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			in.clk.Sleep(constants.ConfirmInterval)
		}

		tail, err := in.driver.CapturePane(in.pane, constants.CaptureLines)
		if err != nil {
			return fmt.Errorf("capturing pane: %w", err)
		}

		class := Classify(tail)
		switch class {
		case ClassMultiOption:
			// Permissive picks "2. Yes, and don't ask again" so the rest
			// of the session runs unattended; conservative keeps the
			// prompts coming.
			answer := "2"
			if in.policy == config.PromptConservative {
				answer = "1"
			}
			in.logger.Printf("injector: consent prompt, answering %s", answer)
			if err := in.answer(answer); err != nil {
				return err
			}
			in.clk.Sleep(constants.AnswerSettleDelay)
		case ClassSingleOption:
			in.logger.Printf("injector: single-option prompt, answering 1")
			if err := in.answer("1"); err != nil {
				return err
			}
		case ClassYesNo:
			in.logger.Printf("injector: y/n prompt, answering y")
			if err := in.answer("y"); err != nil {
				return err
			}
		case ClassPressEnter:
			in.logger.Printf("injector: press-enter prompt")
			if err := in.driver.SendKey(in.pane, "Enter"); err != nil {
				return err
			}
		case ClassWorking:
			// Assistant is computing; nothing to type.
		case ClassIdle:
			return nil
		case ClassError:
			return fmt.Errorf("%w: %s", ErrAssistantError, lastLine(tail))
		case ClassUnknown:
			in.clk.Sleep(constants.UnknownRecaptureDelay)
		}
	}
	return ErrInjectionTimeout
}

// answer types a one-character prompt answer and commits it.
func (in *Injector) answer(key string) error {
	if err := in.driver.SendText(in.pane, key); err != nil {
		return err
	}
	in.clk.Sleep(constants.AnswerCommitDelay)
	return in.driver.SendKey(in.pane, "Enter")
}

// Cancel clears any partial input mid-command. Ctrl-U only: Ctrl-C would
// risk killing the assistant process itself.
func (in *Injector) Cancel() error {
	return in.driver.SendKey(in.pane, "C-u")
}

// lastLine returns the last non-empty line of a capture, for error messages.
func lastLine(tail string) string {
	lines := strings.Split(tail, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}
