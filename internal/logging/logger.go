package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
)

// recentCapacity is how many entries GetBuffer keeps.
const recentCapacity = 1000

// LevelNone silences a logger entirely.
const LevelNone = slog.LevelError + 4

// Config selects output format and levels. Modules maps a module name to
// a level overriding Level for that module.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// moduleLogger is a logger together with the level it reads.
type moduleLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

var (
	mutex       sync.RWMutex
	modules     = make(map[string]*moduleLogger)
	current     Config
	initialized bool
	globalLevel = &slog.LevelVar{}
	logBuffer   *RingBuffer
	logCallback LogCallback
)

// Initialize installs config and creates the ring buffer. Loggers handed
// out earlier keep their LevelVar but get handlers in the new format.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	current = config
	initialized = true
	logBuffer = NewRingBuffer(recentCapacity)

	base := levelOr(config.Level, slog.LevelInfo)
	globalLevel.Set(base)
	for name, m := range modules {
		m.level.Set(levelFor(name, base))
		m.logger = newLogger(name, config.Format, m.level)
	}
	slog.SetDefault(slog.New(newHandler(config.Format, globalLevel)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	m, ok := modules[module]
	mutex.RUnlock()
	if ok {
		return m.logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if m, ok := modules[module]; ok {
		return m.logger
	}

	level := &slog.LevelVar{}
	format := "text"
	if initialized {
		level.Set(levelFor(module, levelOr(current.Level, slog.LevelInfo)))
		format = current.Format
	}
	m = &moduleLogger{logger: newLogger(module, format, level), level: level}
	modules[module] = m
	return m.logger
}

// GetBuffer returns the recent-entries buffer, nil before Initialize.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback registers fn to receive every buffered entry.
func SetLogCallback(fn LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = fn
}

// SetLevel sets every module to level, dropping module overrides.
func SetLevel(level string) error {
	parsed, err := mustParse(level)
	if err != nil {
		return err
	}

	mutex.Lock()
	defer mutex.Unlock()
	current.Level = level
	current.Modules = nil
	globalLevel.Set(parsed)
	for _, m := range modules {
		m.level.Set(parsed)
	}
	return nil
}

// SetModuleLevel overrides the level of one module.
func SetModuleLevel(module, level string) error {
	parsed, err := mustParse(level)
	if err != nil {
		return err
	}
	GetLogger(module)

	mutex.Lock()
	defer mutex.Unlock()
	if current.Modules == nil {
		current.Modules = make(map[string]string)
	}
	current.Modules[module] = level
	modules[module].level.Set(parsed)
	return nil
}

// ApplyLevels replaces the global and module levels with those of config
// without touching the output format. An empty Level means info. Nothing
// changes when any level is invalid.
func ApplyLevels(config Config) error {
	if config.Level == "" {
		config.Level = "info"
	}
	base, err := mustParse(config.Level)
	if err != nil {
		return err
	}
	for module, level := range config.Modules {
		if _, err := mustParse(level); err != nil {
			return fmt.Errorf("module %s: %w", module, err)
		}
	}

	mutex.Lock()
	defer mutex.Unlock()
	current.Level = config.Level
	current.Modules = config.Modules
	globalLevel.Set(base)
	for name, m := range modules {
		m.level.Set(levelFor(name, base))
	}
	return nil
}

// levelFor returns module's override or base. Caller holds mutex.
func levelFor(module string, base slog.Level) slog.Level {
	return levelOr(current.Modules[module], base)
}

func levelOr(level string, fallback slog.Level) slog.Level {
	if parsed, ok := parseLevel(level); ok {
		return parsed
	}
	return fallback
}

func mustParse(level string) (slog.Level, error) {
	parsed, ok := parseLevel(level)
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", level)
	}
	return parsed, nil
}

// parseLevel accepts debug, info, warn(ing), error and none/off in any case.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "none", "off":
		return LevelNone, true
	}
	return 0, false
}

func newLogger(module, format string, level slog.Leveler) *slog.Logger {
	return slog.New(newHandler(format, level)).With("module", module)
}

// newHandler builds the handler chain: stdout when attached, journald
// when reachable, and always the recent-entries buffer.
func newHandler(format string, level slog.Leveler) slog.Handler {
	handlers := fanout{&recentSink{level: level}}
	if stdoutAttached() {
		opts := &slog.HandlerOptions{Level: level}
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if journal.Enabled() {
		handlers = append(handlers, &journalSink{level: level})
	}
	return handlers
}

// stdoutAttached reports whether stdout is open on something that keeps output.
func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode.IsRegular() || mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0
}
