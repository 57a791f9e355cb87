package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsole(&buf, "warn")

	log.Debugf("debug message")
	log.Infof("info message")
	log.Warnf("warn message")
	log.Errorf("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("suppressed levels leaked: %q", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("expected warn and error lines, got %q", out)
	}
}

func TestLogFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsole(&buf, "info")

	log.Infof("hello %s", "world")

	line := buf.String()
	if !strings.Contains(line, "[INFO] hello world") {
		t.Errorf("line = %q, want level tag and message", line)
	}
	// Timestamp prefix like [15:04:05].
	if !strings.HasPrefix(line, "[") || len(line) < 11 || line[9] != ']' {
		t.Errorf("line = %q, want [HH:MM:SS] prefix", line)
	}
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsole(&buf, "chatty")

	log.Debugf("hidden")
	log.Infof("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug shown at default level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("info suppressed at default level")
	}
}

func TestTaskLifecycleHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsole(&buf, "info")

	log.LogTaskStart("t1", "code", "sonnet", 2)
	log.LogTaskComplete("t1", 90*time.Second, 0.75)
	log.LogTaskRequeue("t2", 1, 3, "rate limited")
	log.LogTaskFail("t3", "validation failed")
	log.LogRotation("sonnet", "haiku", 3)
	log.LogProgress(10, 5, 2.5, 2*time.Minute)

	out := buf.String()
	for _, want := range []string{"t1", "t2", "t3", "sonnet", "haiku", "rate limited", "validation failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
