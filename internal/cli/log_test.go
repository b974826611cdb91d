package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info level", log.InfoLevel, func(l *log.Logger) { l.Info("test") }, true},
		{"debug at info level", log.InfoLevel, func(l *log.Logger) { l.Debug("test") }, false},
		{"debug at debug level", log.DebugLevel, func(l *log.Logger) { l.Debug("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			if gotLog := buf.Len() > 0; gotLog != tt.wantLog {
				t.Errorf("got log output = %v, want %v", gotLog, tt.wantLog)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	time.Sleep(10 * time.Millisecond)
	prog.done("Read 3 documents")

	if !strings.Contains(buf.String(), "Read 3 documents (") {
		t.Errorf("progress output = %q, want message with elapsed time", buf.String())
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	custom := newLogger(&buf, log.InfoLevel)

	if got := loggerFromContext(withLogger(context.Background(), custom)); got != custom {
		t.Error("loggerFromContext should return the attached logger")
	}
	if got := loggerFromContext(context.Background()); got != log.Default() {
		t.Error("loggerFromContext should fall back to log.Default()")
	}
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	hooks := logHooks{logger: newLogger(&buf, log.DebugLevel)}

	hooks.OnRead(context.Background(), "invoices", 3, time.Millisecond, nil)
	hooks.OnMigrate("billing.Invoice", 1, 2)
	hooks.OnFlatten(0, time.Millisecond, nil)
	hooks.OnUnflatten(time.Millisecond, errors.New("boom"))

	out := buf.String()
	for _, want := range []string{"invoices", "billing.Invoice", "unflatten failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("hook output %q does not contain %q", out, want)
		}
	}
}
