package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// ChannelConfig describes one named diagnostic channel.
type ChannelConfig struct {
	Path   string `mapstructure:"path"`   // empty means stdout
	Level  string `mapstructure:"level"`
	Mirror bool   `mapstructure:"mirror"` // also write to the global logger
}

// Channels is a registry of named loggers used for operational tailing of
// external calls. It is independent of the audit pipeline.
type Channels struct {
	mu       sync.RWMutex
	loggers  map[string]*slog.Logger
	closers  []io.Closer
	fallback *slog.Logger
}

func NewChannels() *Channels {
	return &Channels{loggers: make(map[string]*slog.Logger)}
}

// OpenChannels builds a registry from config, opening one append-only file per
// channel that declares a path.
func OpenChannels(cfgs map[string]ChannelConfig) (*Channels, error) {
	c := NewChannels()
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := cfgs[name]
		var w io.Writer = os.Stdout
		if cfg.Path != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				c.Close()
				return nil, fmt.Errorf("channel %s: %w", name, err)
			}
			f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				c.Close()
				return nil, fmt.Errorf("channel %s: %w", name, err)
			}
			c.closers = append(c.closers, f)
			w = f
		}
		c.Register(name, w, ParseLevel(cfg.Level), cfg.Mirror)
	}
	return c, nil
}

// Register adds a channel writing JSON lines to w.
func (c *Channels) Register(name string, w io.Writer, level slog.Level, mirror bool) {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if mirror {
		handler = slogmulti.Fanout(handler, Get().Handler())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggers[name] = slog.New(handler).With(slog.String("channel", name))
}

// Channel returns the logger for name. Unknown names fall back to the global
// logger tagged with the channel name.
func (c *Channels) Channel(name string) *slog.Logger {
	c.mu.RLock()
	l, ok := c.loggers[name]
	c.mu.RUnlock()
	if ok {
		return l
	}
	base := c.fallback
	if base == nil {
		base = Get()
	}
	return base.With(slog.String("channel", name))
}

// Write emits one info line with fields as structured attributes.
func (c *Channels) Write(ctx context.Context, channel, message string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	c.Channel(channel).InfoContext(ctx, message, attrs...)
}

func (c *Channels) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cl := range c.closers {
		_ = cl.Close()
	}
	c.closers = nil
}
