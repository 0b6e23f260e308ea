package logger

import (
	"fmt"
	"strings"
	"sync"
)

// Buffer is a Logger that retains every record in memory, for tests that
// assert on what was logged. Unlike the console logger, Fatal does not exit.
type Buffer struct {
	mu   sync.Mutex
	recs []Record
}

// Record is one captured log line.
type Record struct {
	Level   Level
	Message string
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Debug(format string, v ...any) { b.log(DEBUG, format, v...) }
func (b *Buffer) Info(format string, v ...any)  { b.log(INFO, format, v...) }
func (b *Buffer) Warn(format string, v ...any)  { b.log(WARN, format, v...) }
func (b *Buffer) Error(format string, v ...any) { b.log(ERROR, format, v...) }
func (b *Buffer) Fatal(format string, v ...any) { b.log(FATAL, format, v...) }

func (b *Buffer) WithFields(...Field) Logger { return b }
func (b *Buffer) SetLevel(Level)             {}
func (b *Buffer) Level() Level               { return DEBUG }

// Records returns a copy of everything captured so far.
func (b *Buffer) Records() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Record(nil), b.recs...)
}

// Contains reports whether any record at the given level mentions substr.
func (b *Buffer) Contains(level Level, substr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.recs {
		if r.Level == level && strings.Contains(r.Message, substr) {
			return true
		}
	}
	return false
}

func (b *Buffer) log(level Level, format string, v ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recs = append(b.recs, Record{Level: level, Message: fmt.Sprintf(format, v...)})
}
