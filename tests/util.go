package testutil

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/trezcool/masomo/attendance/core"
)

// Logger is a core.Logger writing to the test log. It also keeps the messages for assertions.
type Logger struct {
	t *testing.T

	mu       sync.Mutex
	messages []string
}

var _ core.Logger = (*Logger)(nil)

func NewLogger(t *testing.T) *Logger {
	return &Logger{t: t}
}

func (l *Logger) log(level, msg string, args []interface{}) {
	line := fmt.Sprintf("[%s] %s", level, msg)
	if len(args) > 0 {
		line += " " + fmt.Sprint(args...)
	}
	l.mu.Lock()
	l.messages = append(l.messages, line)
	l.mu.Unlock()
	l.t.Log(line)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }

// Contains reports whether a logged message contains `substr`.
func (l *Logger) Contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}
