// ABOUTME: fsnotify watcher that rotates the write key when the key file changes
// ABOUTME: Reads the trimmed file content and hands it to a Rotator as actor "keyfile"

package keywatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Actor is recorded in the audit trail for rotations made by the watcher.
const Actor = "keyfile"

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 250 * time.Millisecond

// Rotator replaces the write key on behalf of an actor.
type Rotator interface {
	RotateAuthKey(ctx context.Context, actor, newKey string)
}

// Config configures a Watcher.
type Config struct {
	Path     string
	Rotator  Rotator
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher applies the contents of a key file to a Rotator.
type Watcher struct {
	path     string
	rotator  Rotator
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a Watcher. Nothing is read until Load or Run.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, errors.New("key file path is required")
	}
	if cfg.Rotator == nil {
		return nil, errors.New("rotator is required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving key file path: %w", err)
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     abs,
		rotator:  cfg.Rotator,
		debounce: debounce,
		logger:   logger.With("component", "keywatch", "path", abs),
	}, nil
}

// Load reads the key file once and applies it. A missing or empty file is
// reported but leaves the current key in place.
func (w *Watcher) Load(ctx context.Context) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("reading key file: %w", err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		w.logger.Warn("key file is empty, keeping current key")
		return nil
	}

	// Always apply: the key may have been rotated elsewhere since the last load.
	w.rotator.RotateAuthKey(ctx, Actor, key)
	w.logger.Info("auth key rotated from key file")
	return nil
}

// Run watches the key file until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	debouncer := NewDebouncer(w.debounce, func() {
		if err := w.Load(ctx); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				w.logger.Warn("key file removed, keeping current key")
				return
			}
			w.logger.Error("reloading key file", "error", err)
		}
	})
	defer debouncer.Stop()

	w.logger.Info("watching key file")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				debouncer.Trigger()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}
