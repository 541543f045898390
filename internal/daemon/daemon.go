// Package daemon runs the long-lived ClawLink process: it owns the PID-file
// lock, builds the transports and the controller, watches the assistant pane,
// and handles shutdown signals with a bounded drain.
package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clawplaza/clawlink/internal/clock"
	"github.com/clawplaza/clawlink/internal/config"
	"github.com/clawplaza/clawlink/internal/constants"
	"github.com/clawplaza/clawlink/internal/injector"
	"github.com/clawplaza/clawlink/internal/queue"
	"github.com/clawplaza/clawlink/internal/relay"
	"github.com/clawplaza/clawlink/internal/session"
	"github.com/clawplaza/clawlink/internal/token"
	"github.com/clawplaza/clawlink/internal/tmux"
	"github.com/clawplaza/clawlink/internal/transport"
	"github.com/clawplaza/clawlink/internal/transport/linebot"
	"github.com/clawplaza/clawlink/internal/transport/mail"
	"github.com/clawplaza/clawlink/internal/transport/telegram"
)

// Daemon is the supervisor process.
type Daemon struct {
	home   string
	cfg    *config.Config
	logger *log.Logger
	clk    clock.Clock

	controller *relay.Controller
	line       *linebot.Transport
	webhookSrv *http.Server
}

// New wires the full pipeline from configuration. Transport construction
// failures (bad credentials) are fatal here, per the error design.
func New(home string, cfg *config.Config, logger *log.Logger) (*Daemon, error) {
	if err := config.EnsureHome(home); err != nil {
		return nil, fmt.Errorf("preparing state dir: %w", err)
	}
	clk := clock.Real{}

	sessions, err := session.NewStore(config.SessionsDir(home), clk, token.CryptoSource)
	if err != nil {
		return nil, err
	}
	// Loading the queue is also crash recovery: anything the previous
	// process left executing is requeued for re-delivery.
	q, err := queue.Load(config.QueuePath(home), clk)
	if err != nil {
		return nil, err
	}

	d := &Daemon{home: home, cfg: cfg, logger: logger, clk: clk}

	var deliver injector.Delivery
	tm := tmux.NewTmux()
	if cfg.Injector.Mode == config.InjectDrop {
		deliver = injector.NewDrop(config.DropDir(home), logger)
	} else if !tm.IsAvailable() {
		logger.Printf("daemon: tmux unavailable, delivering commands to the drop folder")
		deliver = injector.NewDrop(config.DropDir(home), logger)
	} else {
		deliver = injector.New(tm, clk, logger, cfg.Relay, cfg.PromptPolicy())
	}

	var inbounds []transport.Inbound
	var outbounds []transport.Outbound
	if cfg.Mail.Enabled {
		m := mail.New(cfg.Mail)
		inbounds = append(inbounds, m)
		outbounds = append(outbounds, m)
	}
	if cfg.Line.Enabled {
		d.line = linebot.New(cfg.Line, logger)
		inbounds = append(inbounds, d.line)
		outbounds = append(outbounds, d.line)
	}
	if cfg.Telegram.Enabled {
		tg, err := telegram.New(cfg.Telegram, logger)
		if err != nil {
			return nil, err
		}
		inbounds = append(inbounds, tg)
		outbounds = append(outbounds, tg)
	}

	d.controller = relay.New(relay.Options{
		Config:    cfg,
		Logger:    logger,
		Clock:     clk,
		Sessions:  sessions,
		Queue:     q,
		Cursors:   transport.NewCursorStore(config.CursorsDir(home)),
		Deliver:   deliver,
		Inbounds:  inbounds,
		Outbounds: outbounds,
	})
	return d, nil
}

// Controller exposes the relay controller (for `clawlink notify` and tests).
func (d *Daemon) Controller() *relay.Controller { return d.controller }

// Run acquires the PID-file lock and blocks until a shutdown signal. An
// interrupt stops accepting messages, waits for the executing command to
// finish (up to the drain timeout), persists, and exits.
func (d *Daemon) Run(ctx context.Context) error {
	pidPath := config.PIDPath(d.home)
	if err := acquirePIDFile(pidPath); err != nil {
		return err
	}
	defer releasePIDFile(pidPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if d.line != nil {
		d.webhookSrv = &http.Server{
			Addr:              d.line.ListenAddr(),
			Handler:           d.line.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			d.logger.Printf("daemon: line webhook listening on %s", d.webhookSrv.Addr)
			if err := d.webhookSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				d.logger.Printf("daemon: webhook server: %v", err)
			}
		}()
	}

	d.controller.Start(ctx)

	if d.cfg.Injector.Mode != config.InjectDrop {
		mon := newMonitor(d.cfg.Relay.Pane, d.cfg.Relay.Project, tmux.NewTmux(), d.controller, d.logger)
		go mon.run(ctx, constants.MonitorInterval)
	}

	d.logger.Printf("daemon: started (pid %d, home %s)", os.Getpid(), d.home)

	select {
	case sig := <-sigCh:
		d.logger.Printf("daemon: received %s, draining", sig)
	case <-ctx.Done():
		d.logger.Printf("daemon: context cancelled, draining")
	}

	if d.webhookSrv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		_ = d.webhookSrv.Shutdown(shutdownCtx)
		cancelShutdown()
	}
	d.controller.Stop()
	cancel()
	d.controller.Wait()
	d.logger.Printf("daemon: stopped")
	return nil
}
