// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// sink is the shared destination of a logger and every logger derived
// from it with [Logger.With], so that lines from concurrent probes never
// interleave.
type sink struct {
	mu         sync.Mutex
	output     io.Writer
	timestamps bool
	color      bool
}

var levelColors = map[string]*color.Color{
	"ERR": tagColor(color.FgRed, color.Bold),
	"WRN": tagColor(color.FgYellow),
	"INF": tagColor(color.FgCyan),
	"VRB": tagColor(color.FgHiBlack),
	"DBG": tagColor(color.FgHiBlack),
}

// tagColor ignores color.NoColor, which tracks stdout.  Whether stderr
// is a terminal is decided per sink.
func tagColor(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	c.EnableColor()
	return c
}

// Logger writes levelled messages to stderr.  Scan results go to
// stdout, so nothing written here ever mixes with them.
type Logger struct {
	level  LogLevel
	prefix string
	sink   *sink
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = errors only, 1 = normal, 2 = verbose, 3 = debug).
// Lines carry timestamps at debug level.
func NewLogger(verbosity int) *Logger {
	return &Logger{
		level: LogLevel(verbosity),
		sink: &sink{
			output:     os.Stderr,
			timestamps: verbosity >= int(LogDebug),
			color:      isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("NO_COLOR") == "",
		},
	}
}

// With returns a logger that tags every line with component, e.g.
// "scan/TCP".  It shares level and output with its parent.
func (l *Logger) With(component string) *Logger {
	prefix := component
	if l.prefix != "" {
		prefix = l.prefix + "/" + component
	}
	return &Logger{level: l.level, prefix: prefix, sink: l.sink}
}

// SetOutput overrides the output writer (default: os.Stderr).  Level
// tags are only coloured on a terminal stderr, so this turns colour off.
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.output = w
	l.sink.color = false
	l.sink.mu.Unlock()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Enabled reports whether messages at lvl would be printed.
func (l *Logger) Enabled(lvl LogLevel) bool { return l.level >= lvl }

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("INF", format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write("WRN", format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write("VRB", format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write("DBG", format, args...)
	}
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("ERR", format, args...)
}

func (l *Logger) write(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = l.prefix + ": " + msg
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	tag := "[" + level + "]"
	if c, ok := levelColors[level]; ok && l.sink.color {
		tag = c.Sprint(tag)
	}
	if l.sink.timestamps {
		ts := time.Now().Format("15:04:05.000")
		fmt.Fprintf(l.sink.output, "%s %s %s\n", ts, tag, msg)
	} else {
		fmt.Fprintf(l.sink.output, "%s %s\n", tag, msg)
	}
}
