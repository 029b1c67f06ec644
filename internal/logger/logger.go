package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
	// Dir enables an additional daily rotated log file (YYYY-MM-DD.log).
	Dir string
}

var (
	mu       sync.RWMutex
	level              = new(slog.LevelVar)
	format             = "text"
	output   io.Writer = os.Stdout
	useColor           = isTerminal(os.Stdout.Fd())
	outFile  *os.File
	daily    *dailyFile
	slogger  *slog.Logger
)

func init() {
	level.Set(slog.LevelInfo)
	rebuildLocked()
}

// Init configures the package logger. It may be called more than once; the
// previous output file (if any) is closed.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if cfg.Output != "" {
		var (
			w     io.Writer
			color bool
			f     *os.File
		)
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w, color = os.Stdout, isTerminal(os.Stdout.Fd())
		case "stderr":
			w, color = os.Stderr, isTerminal(os.Stderr.Fd())
		default:
			var err error
			f, err = os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err != nil {
				return fmt.Errorf("open log file %q: %w", cfg.Output, err)
			}
			w = f
		}
		closeLocked()
		output, useColor, outFile = w, color, f
	}

	if cfg.Dir != "" {
		d, err := newDailyFile(cfg.Dir)
		if err != nil {
			return err
		}
		if daily != nil {
			_ = daily.Close()
		}
		daily = d
	}

	if cfg.Level != "" {
		if err := setLevelLocked(cfg.Level); err != nil {
			return err
		}
	}
	if cfg.Format != "" {
		f := strings.ToLower(cfg.Format)
		if f != "text" && f != "json" {
			return fmt.Errorf("invalid log format %q", cfg.Format)
		}
		format = f
	}
	rebuildLocked()
	return nil
}

// InitWithWriter points the logger at w. Used by tests.
func InitWithWriter(w io.Writer, lvl, fmtName string) {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	output, useColor = w, false
	if lvl != "" {
		_ = setLevelLocked(lvl)
	}
	if fmtName != "" {
		format = strings.ToLower(fmtName)
	}
	rebuildLocked()
}

// Close releases any log files opened by Init.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	if daily != nil {
		_ = daily.Close()
		daily = nil
	}
	output, useColor = os.Stdout, isTerminal(os.Stdout.Fd())
	rebuildLocked()
}

// SetLevel changes the minimum level; unknown names are ignored.
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()
	_ = setLevelLocked(name)
}

func setLevelLocked(name string) error {
	switch strings.ToUpper(name) {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARN", "WARNING":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	default:
		return fmt.Errorf("invalid log level %q", name)
	}
	return nil
}

func closeLocked() {
	if outFile != nil {
		_ = outFile.Close()
		outFile = nil
	}
}

func rebuildLocked() {
	w := output
	if daily != nil {
		w = io.MultiWriter(output, daily)
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		// Colour codes never reach the daily file when it is attached.
		h = newTextHandler(w, opts, useColor && daily == nil)
	}
	slogger = slog.New(h)
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at debug level: Debug("msg", "key", value, ...).
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { get().Error(msg, args...) }

// With returns a logger with pre-bound attributes.
func With(args ...any) *slog.Logger { return get().With(args...) }
