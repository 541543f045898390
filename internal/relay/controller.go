package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/clawplaza/clawlink/internal/clock"
	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/constants"
	"github.com/clawplaza/clawlink/internal/injector"
	"github.com/clawplaza/clawlink/internal/queue"
	"github.com/clawplaza/clawlink/internal/replyparse"
	"github.com/clawplaza/clawlink/internal/session"
	"github.com/clawplaza/clawlink/internal/transport"
)

// Controller glues the pipeline together: inbound transports feed the parser,
// authenticated commands land in the durable queue, and the dispatch loop
// hands them to the injector one session at a time.
type Controller struct {
	cfg      *config.Config
	logger   *log.Logger
	clk      clock.Clock
	sessions *session.Store
	queue    *queue.Queue
	cursors  *transport.CursorStore
	deliver  injector.Delivery
	bus      *Bus

	inbounds  []transport.Inbound
	outbounds map[string]transport.Outbound

	// pollInterval overrides per-transport cadence (tests); zero uses the
	// transport's own preference.
	pollInterval time.Duration

	wg       sync.WaitGroup
	draining chan struct{} // closed when shutdown starts
	done     chan struct{} // closed when the dispatch loop has drained
}

// Options carries the controller's collaborators. Everything is explicit so
// tests construct one per case.
type Options struct {
	Config   *config.Config
	Logger   *log.Logger
	Clock    clock.Clock
	Sessions *session.Store
	Queue    *queue.Queue
	Cursors  *transport.CursorStore
	Deliver  injector.Delivery
	Bus      *Bus

	Inbounds  []transport.Inbound
	Outbounds []transport.Outbound

	// PollInterval overrides transport poll cadence when non-zero.
	PollInterval time.Duration
}

// New builds a controller.
func New(opts Options) *Controller {
	bus := opts.Bus
	if bus == nil {
		bus = NewBus()
	}
	outbounds := make(map[string]transport.Outbound, len(opts.Outbounds))
	for _, o := range opts.Outbounds {
		outbounds[o.Name()] = o
	}
	return &Controller{
		cfg:          opts.Config,
		logger:       opts.Logger,
		clk:          opts.Clock,
		sessions:     opts.Sessions,
		queue:        opts.Queue,
		cursors:      opts.Cursors,
		deliver:      opts.Deliver,
		bus:          bus,
		inbounds:     opts.Inbounds,
		outbounds:    outbounds,
		pollInterval: opts.PollInterval,
		draining:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Bus exposes the event bus for admin surfaces.
func (c *Controller) Bus() *Bus { return c.bus }

// Start launches one goroutine per inbound transport plus the dispatch loop.
// The queue was already crash-recovered at load time (executing → queued).
func (c *Controller) Start(ctx context.Context) {
	c.bus.Publish(Event{Type: EventStarted, Time: c.clk.Now()})
	for _, in := range c.inbounds {
		c.wg.Add(1)
		go func(in transport.Inbound) {
			defer c.wg.Done()
			c.inboundLoop(ctx, in)
		}(in)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatchLoop(ctx)
	}()
}

// Stop stops accepting new work, lets the in-flight command finish up to the
// drain timeout, and returns.
func (c *Controller) Stop() {
	close(c.draining)
	select {
	case <-c.done:
	case <-time.After(constants.DrainTimeout):
		c.logger.Printf("relay: drain timeout, abandoning in-flight command")
	}
	c.bus.Publish(Event{Type: EventStopped, Time: c.clk.Now()})
}

// Wait blocks until all loops have exited.
func (c *Controller) Wait() { c.wg.Wait() }

// newPollBackoff builds the reconnect backoff for one inbound transport,
// growing from its normal cadence up to the reconnect cap.
func newPollBackoff(cadence time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cadence
	bo.MaxInterval = constants.ReconnectMaxInterval
	return bo
}

// transportCadence returns how often to poll an inbound transport.
func (c *Controller) transportCadence(in transport.Inbound) time.Duration {
	if c.pollInterval > 0 {
		return c.pollInterval
	}
	if p, ok := in.(interface{ PollInterval() time.Duration }); ok {
		return p.PollInterval()
	}
	return constants.DispatchInterval
}

// inboundLoop polls one transport until shutdown. Transient poll errors back
// off exponentially (capped) without advancing the cursor; a permanent error
// stops the transport until operator action.
func (c *Controller) inboundLoop(ctx context.Context, in transport.Inbound) {
	cadence := c.transportCadence(in)
	bo := newPollBackoff(cadence)
	wait := cadence
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.draining:
			return
		case <-time.After(wait):
		}

		cursor, err := c.cursors.Load(in.Name())
		if err != nil {
			c.logger.Printf("relay: loading %s cursor: %v", in.Name(), err)
			wait = cadence
			continue
		}

		msgs, next, err := in.Poll(ctx, cursor)
		if err != nil {
			if transport.IsTransient(err) {
				wait = bo.NextBackOff()
				c.logger.Printf("relay: %s poll failed (retrying in %s): %v", in.Name(), wait.Truncate(time.Second), err)
				continue
			}
			c.logger.Printf("relay: %s poll failed permanently, stopping transport: %v", in.Name(), err)
			return
		}
		bo = newPollBackoff(cadence)
		wait = cadence

		for _, m := range msgs {
			c.handleMessage(ctx, in, m)
		}
		if next != cursor {
			if err := c.cursors.Save(in.Name(), next, c.clk.Now()); err != nil {
				c.logger.Printf("relay: saving %s cursor: %v", in.Name(), err)
			}
		}
	}
}

// handleMessage runs one inbound message through authenticate → parse →
// session lookup → enqueue. Parse and lookup failures are answered with a
// helpful reply when the transport can send one; auth failures get a generic
// refusal and a detailed log line.
func (c *Controller) handleMessage(ctx context.Context, in transport.Inbound, m transport.Message) {
	name := in.Name()

	if auth := in.Authenticate(m); !auth.OK {
		c.logger.Printf("relay: %s message %s rejected: %s", name, m.ID, auth.Reason)
		c.bus.Publish(Event{Type: EventMessageRejected, Time: c.clk.Now(), Transport: name, Detail: auth.Reason})
		c.replyTo(ctx, name, m, "Unauthorized.")
		return
	}

	var parsed *replyparse.ParsedCommand
	var err error
	if name == "mail" {
		parsed, err = replyparse.ParseEmail(replyparse.Message{Subject: m.Subject, Body: m.Body})
	} else {
		parsed, err = replyparse.ParseChat(m.Body)
	}
	if err != nil {
		switch {
		case errors.Is(err, replyparse.ErrNoToken):
			c.logger.Printf("relay: %s message %s has no token", name, m.ID)
			// Chat messages without a token are ordinary chatter; only
			// mail replies warrant an error answer since they were
			// addressed to us deliberately.
			if name == "mail" {
				c.replyTo(ctx, name, m, "No session token found. Reply to a ClawLink notification without editing the subject.")
			}
		case errors.Is(err, replyparse.ErrEmptyCommand):
			c.replyTo(ctx, name, m, "Your reply contained no command after removing quoted text.")
		default:
			c.logger.Printf("relay: %s parse error: %v", name, err)
		}
		return
	}

	rec, err := c.sessions.FindByToken(parsed.Token)
	if err != nil {
		c.logger.Printf("relay: %s token %s unknown or expired", name, parsed.Token)
		c.replyTo(ctx, name, m, "Token expired. Wait for the next notification.")
		return
	}

	// The token must be used over the transport it was issued on, by the
	// principal it was issued to.
	if rec.Transport != name || !sameRecipient(rec.Recipient, m.Sender) {
		c.logger.Printf("relay: token %s bound to %s/%s, got %s/%s",
			parsed.Token, rec.Transport, rec.Recipient, name, m.Sender)
		c.replyTo(ctx, name, m, "Unauthorized.")
		return
	}

	qid, err := c.queue.Enqueue(rec.ID, parsed.Command)
	if err != nil {
		c.logger.Printf("relay: enqueue failed: %v", err)
		c.replyTo(ctx, name, m, "Internal error queueing your command, try again.")
		return
	}
	if err := c.sessions.IncrementCommandCount(rec.ID); err != nil {
		c.logger.Printf("relay: counting command for session %s: %v", rec.ID, err)
	}
	c.logger.Printf("relay: queued %s for session %s (%s)", qid, rec.ID, rec.Project)
	c.bus.Publish(Event{Type: EventCommandQueued, Time: c.clk.Now(), Transport: name, SessionID: rec.ID, QueueID: qid, Detail: parsed.Command})

	// Chat transports acknowledge; mail stays quiet to keep the operator's
	// inbox to one thread per session.
	if name != "mail" {
		c.replyTo(ctx, name, m, fmt.Sprintf("Queued for %s:\n%s", rec.Project, parsed.Command))
	}
}

// sameRecipient compares transport addresses; mail addresses compare
// case-insensitively.
func sameRecipient(bound, got string) bool {
	return strings.EqualFold(strings.TrimSpace(bound), strings.TrimSpace(got))
}

// replyTo answers an inbound message through the same transport, preferring
// the message's reply reference when the transport gave one.
func (c *Controller) replyTo(ctx context.Context, name string, m transport.Message, text string) {
	out, ok := c.outbounds[name]
	if !ok {
		return
	}
	recipient := m.Sender
	if m.ReplyRef != "" && name == "line" {
		recipient = "reply:" + m.ReplyRef
	}
	if _, err := out.Send(ctx, recipient, transport.Payload{Body: text}); err != nil {
		c.logger.Printf("relay: reply via %s failed: %v", name, err)
	}
}

// dispatchLoop pulls ready commands every tick and executes them via the
// injector, one command per session at a time.
func (c *Controller) dispatchLoop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(constants.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.draining:
			return
		case <-ticker.C:
		}
		c.DispatchOnce(ctx)
	}
}

// DispatchOnce executes every currently ready command. Exported so tests and
// the CLI can drive the queue without the timer.
func (c *Controller) DispatchOnce(ctx context.Context) {
	for _, cmd := range c.queue.DequeueAll() {
		if err := c.queue.MarkExecuting(cmd.ID); err != nil {
			c.logger.Printf("relay: marking %s executing: %v", cmd.ID, err)
			continue
		}
		c.execute(ctx, cmd)
	}
}

// execute runs one command through the injector and records the outcome.
func (c *Controller) execute(ctx context.Context, cmd *queue.Command) {
	injectCtx, cancel := context.WithTimeout(ctx, constants.InjectHardTimeout)
	err := c.deliver.Inject(injectCtx, cmd.Command)
	cancel()

	if err == nil {
		if markErr := c.queue.MarkCompleted(cmd.ID); markErr != nil {
			c.logger.Printf("relay: marking %s completed: %v", cmd.ID, markErr)
		}
		c.logger.Printf("relay: executed %s", cmd.ID)
		c.bus.Publish(Event{Type: EventCommandExecuted, Time: c.clk.Now(), SessionID: cmd.SessionID, QueueID: cmd.ID})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = injector.ErrInjectionTimeout
	}
	c.logger.Printf("relay: command %s failed: %v", cmd.ID, err)
	if markErr := c.queue.MarkFailed(cmd.ID, err); markErr != nil {
		c.logger.Printf("relay: marking %s failed: %v", cmd.ID, markErr)
	}
	c.bus.Publish(Event{Type: EventCommandFailed, Time: c.clk.Now(), SessionID: cmd.SessionID, QueueID: cmd.ID, Detail: err.Error()})
}

// Notify mints a session per outbound transport and sends the idle
// notification. Called by the pane monitor and by `clawlink notify`.
func (c *Controller) Notify(ctx context.Context, subject, body string) error {
	if len(c.outbounds) == 0 {
		return fmt.Errorf("no outbound transports configured")
	}
	var firstErr error
	for name, out := range c.outbounds {
		recipient := c.defaultRecipient(name)
		rec := &session.Record{
			Transport: name,
			Recipient: recipient,
			Pane:      c.cfg.Relay.Pane,
			Project:   c.cfg.Relay.Project,
		}
		rec, err := c.sessions.Mint(rec, constants.SessionLifetime)
		if err != nil {
			c.logger.Printf("relay: minting session for %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		payload := transport.Payload{
			Subject:   subject,
			Body:      body,
			Token:     rec.Token,
			SessionID: rec.ID,
		}
		if _, err := out.Send(ctx, recipient, payload); err != nil {
			c.logger.Printf("relay: notification via %s failed: %v", name, err)
			_ = c.sessions.Delete(rec.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		_ = c.sessions.SetNotification(rec.ID, &session.Notification{
			Subject: payload.Subject,
			Body:    payload.Body,
			SentAt:  c.clk.Now(),
		})
		c.logger.Printf("relay: notified %s (token %s)", name, rec.Token)
		c.bus.Publish(Event{Type: EventNotificationSent, Time: c.clk.Now(), Transport: name, SessionID: rec.ID})
	}
	return firstErr
}

// defaultRecipient returns the configured operator address for a transport.
func (c *Controller) defaultRecipient(name string) string {
	switch name {
	case "mail":
		return c.cfg.Mail.To
	case "line":
		return c.cfg.Line.To
	case "telegram":
		return fmt.Sprintf("%d", c.cfg.Telegram.To)
	}
	return ""
}
