package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ggoodman/candid-explorer-go/idl"
)

// DescriptionFiles names the files holding a service's interface texts.
// Either path may be empty.
type DescriptionFiles struct {
	Executable  string
	Declaration string
}

// Read loads the files into Sources.
func (f DescriptionFiles) Read() (idl.Sources, error) {
	var src idl.Sources
	for _, p := range []struct {
		path string
		dst  *string
	}{{f.Executable, &src.Executable}, {f.Declaration, &src.Declaration}} {
		if p.path == "" {
			continue
		}
		b, err := os.ReadFile(p.path)
		if err != nil {
			return idl.Sources{}, fmt.Errorf("explorer: read description: %w", err)
		}
		*p.dst = string(b)
	}
	return src, nil
}

func (f DescriptionFiles) paths() []string {
	var out []string
	for _, p := range []string{f.Executable, f.Declaration} {
		if p != "" {
			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
			out = append(out, p)
		}
	}
	return out
}

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
	log      *slog.Logger
}

// WithDebounce coalesces bursts of file events. Default 250ms.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) { c.debounce = d }
}

// WithWatchLogger sets the watcher's logger.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(c *watchConfig) { c.log = l }
}

// Watch calls onChange with freshly read sources whenever one of the
// description files is written, created or renamed into place. Watching
// the parent directories keeps editors that replace files atomically
// working. Watch blocks until ctx is done or onChange returns an error.
func Watch(ctx context.Context, files DescriptionFiles, onChange func(context.Context, idl.Sources) error, opts ...WatchOption) error {
	cfg := watchConfig{debounce: 250 * time.Millisecond, log: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}
	paths := files.paths()
	if len(paths) == 0 {
		return errors.New("explorer: no description files to watch")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("explorer: watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	wanted := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		wanted[p] = true
		dirs[filepath.Dir(p)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("explorer: watch %s: %w", d, err)
		}
	}

	fire := make(chan struct{}, 1)
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	trigger := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(cfg.debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !wanted[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			cfg.log.DebugContext(ctx, "explorer.watch.error", slog.String("err", err.Error()))
		case <-fire:
			src, err := files.Read()
			if err != nil {
				cfg.log.WarnContext(ctx, "explorer.watch.read_failed", slog.Any("err", err))
				continue
			}
			if err := onChange(ctx, src); err != nil {
				return err
			}
		}
	}
}
