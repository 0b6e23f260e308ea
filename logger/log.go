package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	nocolor   = "0"
	red       = "31"
	green     = "38;5;48"
	yellow    = "33"
	gray      = "38;5;251"
	lightgray = "38;5;243"
)

const dateFormat = "2006-01-02 15:04:05"

type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	Fatal(format string, v ...any)

	WithFields(fields ...Field) Logger
	SetLevel(level Level)
	Level() Level
}

// Printer renders a single log record somewhere.
type Printer interface {
	Print(level Level, msg string, fields Fields)
}

// ConsoleLogger is a Logger that writes each record through a Printer.
type ConsoleLogger struct {
	printer Printer
	fields  Fields
	exitFn  func(int)

	mu    sync.Mutex
	level Level
}

func NewConsoleLogger(printer Printer, exitFn func(int)) Logger {
	return &ConsoleLogger{
		printer: printer,
		level:   INFO,
		exitFn:  exitFn,
	}
}

// WithFields returns a copy of the logger with the provided fields appended.
func (l *ConsoleLogger) WithFields(fields ...Field) Logger {
	clone := &ConsoleLogger{
		printer: l.printer,
		level:   l.Level(),
		exitFn:  l.exitFn,
	}
	clone.fields = append(clone.fields, l.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (l *ConsoleLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *ConsoleLogger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *ConsoleLogger) Debug(format string, v ...any) {
	if l.Level() <= DEBUG {
		l.printer.Print(DEBUG, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Info(format string, v ...any) {
	if l.Level() <= INFO {
		l.printer.Print(INFO, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Warn(format string, v ...any) {
	if l.Level() <= WARN {
		l.printer.Print(WARN, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Error(format string, v ...any) {
	if l.Level() <= ERROR {
		l.printer.Print(ERROR, fmt.Sprintf(format, v...), l.fields)
	}
}

func (l *ConsoleLogger) Fatal(format string, v ...any) {
	l.printer.Print(FATAL, fmt.Sprintf(format, v...), l.fields)
	l.exitFn(1)
}

// TextPrinter prints log records as human-readable lines, with colors when the
// output is a terminal.
type TextPrinter struct {
	Colors bool

	mu sync.Mutex
	w  io.Writer
}

func NewTextPrinter(w io.Writer) *TextPrinter {
	return &TextPrinter{
		w:      w,
		Colors: ColorsAvailable(),
	}
}

func ColorsAvailable() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (p *TextPrinter) Print(level Level, msg string, fields Fields) {
	now := time.Now().Format(dateFormat)

	fieldStrs := make([]string, 0, len(fields))
	for _, f := range fields {
		fieldStrs = append(fieldStrs, f.Key+"="+f.Value)
	}
	suffix := strings.Join(fieldStrs, " ")
	if suffix != "" {
		suffix = " " + suffix
	}

	var line string
	if p.Colors {
		levelColor := green
		messageColor := nocolor
		switch level {
		case DEBUG:
			levelColor, messageColor = gray, gray
		case WARN:
			levelColor = yellow
		case ERROR:
			levelColor = red
		case FATAL:
			levelColor, messageColor = red, red
		}
		line = fmt.Sprintf("\x1b[%sm%s %-5s\x1b[0m \x1b[%sm%s\x1b[0m\x1b[%sm%s\x1b[0m\n",
			levelColor, now, level, messageColor, msg, lightgray, suffix)
	} else {
		line = fmt.Sprintf("%s %-5s %s%s\n", now, level, msg, suffix)
	}

	// Only output one line at a time.
	p.mu.Lock()
	fmt.Fprint(p.w, line)
	p.mu.Unlock()
}

// JSONPrinter prints one JSON object per log record, for log collectors.
type JSONPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{enc: json.NewEncoder(w)}
}

func (p *JSONPrinter) Print(level Level, msg string, fields Fields) {
	record := map[string]string{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level.String(),
		"msg":   msg,
	}
	for _, f := range fields {
		record[f.Key] = f.Value
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// A record that can't be encoded is not worth crashing over.
	_ = p.enc.Encode(record)
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any)         {}
func (discardLogger) Info(string, ...any)          {}
func (discardLogger) Warn(string, ...any)          {}
func (discardLogger) Error(string, ...any)         {}
func (discardLogger) Fatal(string, ...any)         {}
func (d discardLogger) WithFields(...Field) Logger { return d }
func (discardLogger) SetLevel(Level)               {}
func (discardLogger) Level() Level                 { return FATAL }

// Discard is a Logger that emits nothing, for tests.
var Discard Logger = discardLogger{}
