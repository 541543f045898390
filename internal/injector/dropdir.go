package injector

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/clawplaza/clawlink/internal/fsutil"
)

// Delivery is the narrow contract the relay dispatches through: the tmux
// Injector in normal operation, the DropInjector when no multiplexer is
// available.
type Delivery interface {
	Inject(ctx context.Context, command string) error
	Cancel() error
}

// DropInjector is the degraded delivery backend: each command becomes a file
// in the drop folder, to be consumed by an external shim watching it. There
// is no confirmation loop — the shim owns the conversation with the
// assistant.
type DropInjector struct {
	dir    string
	logger *log.Logger
	seq    int
}

// NewDrop returns a drop-folder injector rooted at dir.
func NewDrop(dir string, logger *log.Logger) *DropInjector {
	return &DropInjector{dir: dir, logger: logger}
}

// Inject writes the command to a .cmd file, atomically so a watcher never
// reads a torn payload.
func (d *DropInjector) Inject(ctx context.Context, command string) error {
	if err := os.MkdirAll(d.dir, 0700); err != nil {
		return fmt.Errorf("creating drop dir: %w", err)
	}
	d.seq++
	name := fmt.Sprintf("cmd-%06d.cmd", d.seq)
	path := filepath.Join(d.dir, name)
	if err := fsutil.WriteFile(path, []byte(command+"\n"), 0600); err != nil {
		return fmt.Errorf("writing drop file: %w", err)
	}
	d.logger.Printf("injector(drop): wrote %s", name)
	return nil
}

// Cancel is a no-op in drop mode; there is no input buffer to clear.
func (d *DropInjector) Cancel() error { return nil }

// WatchDrop reports each completed .cmd file appearing in dir until ctx is
// done. This is the consumption side used by tests and by external shims
// that relay drop files into whatever terminal they do control.
func WatchDrop(ctx context.Context, dir string, handle func(path, command string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic drops appear as renames; plain writers as creates.
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".cmd") {
				continue
			}
			data, err := os.ReadFile(event.Name)
			if err != nil {
				continue
			}
			handle(event.Name, strings.TrimRight(string(data), "\n"))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher: %w", err)
		}
	}
}
