package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HooksDirName is the workspace directory scanned for shell hooks.
const HooksDirName = ".slashbot/hooks"

// ScriptTimeout bounds each filesystem hook invocation.
const ScriptTimeout = 30 * time.Second

// ScriptHook is one discovered filesystem hook:
// <workspace>/.slashbot/hooks/<event>.<name>.sh.
type ScriptHook struct {
	Event string
	Name  string
	Path  string
}

// DiscoverScripts scans workspaceDir for executable hook scripts. Files
// that are not executable or don't match the <event>.<name>.sh pattern are
// skipped.
func DiscoverScripts(workspaceDir string) ([]ScriptHook, error) {
	dir := filepath.Join(workspaceDir, filepath.FromSlash(HooksDirName))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read hooks dir: %w", err)
	}

	var hooks []ScriptHook
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".sh") {
			continue
		}
		base := strings.TrimSuffix(name, ".sh")
		dot := strings.Index(base, ".")
		if dot <= 0 || dot == len(base)-1 {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o111 == 0 {
			continue
		}

		hooks = append(hooks, ScriptHook{
			Event: base[:dot],
			Name:  base[dot+1:],
			Path:  filepath.Join(dir, name),
		})
	}
	return hooks, nil
}

// ScriptWatcher keeps filesystem hooks registered on a dispatcher,
// re-scanning the hooks directory when it changes.
type ScriptWatcher struct {
	dispatcher   *Dispatcher
	workspaceDir string
	logger       *slog.Logger

	mu      sync.Mutex
	regIDs  []string
	watcher *fsnotify.Watcher
}

// NewScriptWatcher creates a watcher; call Start to perform the initial
// scan and begin watching.
func NewScriptWatcher(d *Dispatcher, workspaceDir string, logger *slog.Logger) *ScriptWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptWatcher{
		dispatcher:   d,
		workspaceDir: workspaceDir,
		logger:       logger.With("component", "hooks", "source", "filesystem"),
	}
}

// Start registers currently discovered scripts and begins watching the
// hooks directory for changes. A missing directory is not an error; the
// watch simply isn't established until the next Start.
func (w *ScriptWatcher) Start(ctx context.Context) error {
	if err := w.resync(); err != nil {
		return err
	}

	dir := filepath.Join(w.workspaceDir, filepath.FromSlash(HooksDirName))
	if _, err := os.Stat(dir); err != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("hooks watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch hooks dir: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.loop(ctx, watcher)
	return nil
}

func (w *ScriptWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			watcher.Close()
			return
		case _, ok := <-watcher.Events:
			if !ok {
				return
			}
			if err := w.resync(); err != nil {
				w.logger.Warn("hooks resync failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("hooks watch error", "error", err)
		}
	}
}

// resync replaces all filesystem-hook registrations with the current
// directory contents.
func (w *ScriptWatcher) resync() error {
	scripts, err := DiscoverScripts(w.workspaceDir)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, id := range w.regIDs {
		w.dispatcher.Unregister(id)
	}
	w.regIDs = w.regIDs[:0]

	for _, script := range scripts {
		handler := CommandHandler(script.Path, w.workspaceDir, script.Event, w.logger)
		id := w.dispatcher.Register(Registration{
			PluginID:    "filesystem",
			Domain:      domainForEvent(script.Event),
			Event:       script.Event,
			Timeout:     ScriptTimeout,
			Handler:     handler,
			Description: "filesystem hook: " + script.Name,
		})
		w.regIDs = append(w.regIDs, id)
		w.logger.Debug("registered filesystem hook", "event", script.Event, "name", script.Name)
	}
	return nil
}

// Stop closes the directory watcher.
func (w *ScriptWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
}
