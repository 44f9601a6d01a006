// Package logging provides the relay service's unified logging
// surface: a log/slog wrapper with per-subsystem level configuration
// via environment variables.
//
//	RELAYHOP_LOG_LEVEL: subsystem=level,subsystem=level,defaultLevel
//	  e.g. "relay.store=debug,relay.splicer=warn,info"
//	RELAYHOP_LOG_FORMAT: "text" (default) or "json"
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Format is the log output encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

type config struct {
	defaultLevel    slog.Level
	subsystemLevels map[string]slog.Level
	format          Format
}

var (
	cfgOnce sync.Once
	cfg     *config

	loggers sync.Map // map[string]*slog.Logger
)

func loadConfig() *config {
	cfgOnce.Do(func() {
		c := &config{
			defaultLevel:    slog.LevelInfo,
			subsystemLevels: map[string]slog.Level{},
			format:          FormatText,
		}
		if s := os.Getenv("RELAYHOP_LOG_LEVEL"); s != "" {
			for _, part := range strings.Split(s, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				if kv := strings.SplitN(part, "=", 2); len(kv) == 2 {
					if lvl, ok := parseLevel(kv[1]); ok {
						c.subsystemLevels[strings.TrimSpace(kv[0])] = lvl
					}
					continue
				}
				if lvl, ok := parseLevel(part); ok {
					c.defaultLevel = lvl
				}
			}
		}
		if strings.EqualFold(os.Getenv("RELAYHOP_LOG_FORMAT"), "json") {
			c.format = FormatJSON
		}
		cfg = c
	})
	return cfg
}

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// Logger returns the slog.Logger for subsystem, creating and caching
// it on first use.
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}
	c := loadConfig()
	level := c.defaultLevel
	if lvl, ok := c.subsystemLevels[subsystem]; ok {
		level = lvl
	}
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if c.format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	l := slog.New(handler).With("subsystem", subsystem)
	actual, _ := loggers.LoadOrStore(subsystem, l)
	return actual.(*slog.Logger)
}

// Discard returns a logger that drops everything, for use in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
