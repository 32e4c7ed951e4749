package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and calls a callback when its content changes
// to another valid config. Invalid edits are logged and the previous config
// stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	mu   sync.Mutex
	last snapshot
}

// snapshot is the last valid load. stamp is only a cheap pre-check; the
// content hash decides whether anything changed.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	stamp fileStamp
}

type fileStamp struct {
	mtime time.Time
	size  int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{mtime: info.ModTime(), size: info.Size()}
}

func (s fileStamp) equal(o fileStamp) bool {
	return s.size == o.size && s.mtime.Equal(o.mtime)
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger. The default is [slog.Default].
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads the config at path. Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.last = snap
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Run polls until ctx is done. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if old, cfg := w.poll(); cfg != nil && w.onChange != nil {
				w.onChange(old, cfg)
			}
		}
	}
}

// poll returns the previous and new config when the file now holds a
// different valid config, and nils otherwise.
func (w *Watcher) poll() (old, cfg *Config) {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return nil, nil
	}

	w.mu.Lock()
	prev := w.last
	w.mu.Unlock()
	if stampOf(info).equal(prev.stamp) {
		return nil, nil
	}

	next, err := w.read()
	if err != nil {
		w.log.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if next.sum == w.last.sum {
		w.last.stamp = next.stamp
		return nil, nil
	}
	old = w.last.cfg
	w.last = next
	w.log.Info("config watcher: configuration reloaded", "path", w.path)
	return old, next.cfg
}

func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), stamp: stampOf(info)}, nil
}
