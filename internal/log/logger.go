// Package log provides a global logger with a configurable level and output.
// The library is quiet by default; binaries opt in with SetLevel.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Failures that are not expected during normal use.
	LevelWarning              // Failures that are expected to occur occasionally.
	LevelInfo                 // Major events, such as session transitions.
	LevelDebug                // Raw TX/RX bytes.
)

var labels = [...]string{
	LevelError:   "[error]",
	LevelWarning: "[warn ]",
	LevelInfo:    "[info ]",
	LevelDebug:   "[debug]",
}

var (
	mu     sync.Mutex
	level  Level
	output io.Writer = os.Stderr
)

func SetLevel(l Level) {
	mu.Lock()
	level = l
	mu.Unlock()
}

// SetOutput redirects log lines, primarily for tests. Passing nil restores
// the default of standard error.
func SetOutput(w io.Writer) {
	mu.Lock()
	if w == nil {
		w = os.Stderr
	}
	output = w
	mu.Unlock()
}

func emit(l Level, format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l > level {
		return
	}
	fmt.Fprintf(output, "%s %s %s\n", time.Now().Format(time.RFC3339), labels[l], fmt.Sprintf(format, a...))
}

func Debug(format string, a ...interface{}) {
	emit(LevelDebug, format, a...)
}

func Info(format string, a ...interface{}) {
	emit(LevelInfo, format, a...)
}

func Warning(format string, a ...interface{}) {
	emit(LevelWarning, format, a...)
}

func Error(format string, a ...interface{}) {
	emit(LevelError, format, a...)
}
