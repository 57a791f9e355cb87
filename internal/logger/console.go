// Package logger provides the leveled console logger used across the engine.
//
// Output lines are prefixed with [HH:MM:SS] timestamps and a level tag.
// Implementations are thread-safe; color is enabled automatically when the
// writer is a terminal.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Log level constants for filtering
const (
	levelDebug int = 0
	levelInfo  int = 1
	levelWarn  int = 2
	levelError int = 3
)

// Console logs engine progress to a writer with timestamps and thread safety.
// A nil writer silently discards all output.
type Console struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsole creates a Console writing to w. Valid levels: debug, info,
// warn, error (case-insensitive); empty or unknown levels default to "info".
func NewConsole(w io.Writer, logLevel string) *Console {
	return &Console{
		writer:      w,
		logLevel:    normalizeLevel(logLevel),
		colorOutput: isTerminal(w),
	}
}

// isTerminal reports whether w is a TTY that supports color. NO_COLOR is
// honored through the color package's global.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func normalizeLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

func levelToInt(level string) int {
	switch level {
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (c *Console) shouldLog(messageLevel string) bool {
	return levelToInt(messageLevel) >= levelToInt(c.logLevel)
}

// Debugf logs a debug-level message.
func (c *Console) Debugf(format string, args ...interface{}) {
	c.logf("debug", "DEBUG", format, args...)
}

// Infof logs an info-level message.
func (c *Console) Infof(format string, args ...interface{}) {
	c.logf("info", "INFO", format, args...)
}

// Warnf logs a warning-level message.
func (c *Console) Warnf(format string, args ...interface{}) {
	c.logf("warn", "WARN", format, args...)
}

// Errorf logs an error-level message.
func (c *Console) Errorf(format string, args ...interface{}) {
	c.logf("error", "ERROR", format, args...)
}

func (c *Console) logf(level, tag, format string, args ...interface{}) {
	if c.writer == nil || !c.shouldLog(level) {
		return
	}

	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05")
	line := fmt.Sprintf("[%s] [%s] %s\n", timestamp, tag, message)

	if c.colorOutput {
		switch level {
		case "warn":
			line = color.YellowString(line)
		case "error":
			line = color.RedString(line)
		case "debug":
			line = color.HiBlackString(line)
		}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	fmt.Fprint(c.writer, line)
}

// LogTaskStart announces a worker picking up a task.
func (c *Console) LogTaskStart(taskID, taskType, modelID string, attempt int) {
	c.Infof("task %s (%s) started on %s, attempt %d", taskID, taskType, modelID, attempt)
}

// LogTaskComplete announces a successfully validated task.
func (c *Console) LogTaskComplete(taskID string, duration time.Duration, score float64) {
	if c.colorOutput {
		c.Infof("%s task %s completed in %v (score %.2f)", color.GreenString("✓"), taskID, duration.Round(time.Millisecond), score)
		return
	}
	c.Infof("task %s completed in %v (score %.2f)", taskID, duration.Round(time.Millisecond), score)
}

// LogTaskFail announces a permanently failed task.
func (c *Console) LogTaskFail(taskID, reason string) {
	c.Errorf("task %s failed: %s", taskID, reason)
}

// LogTaskRequeue announces a retrying task returning to the queue.
func (c *Console) LogTaskRequeue(taskID string, retryCount, maxRetries int, reason string) {
	c.Warnf("task %s requeued (%d/%d): %s", taskID, retryCount, maxRetries, reason)
}

// LogRotation announces failover from one backend model to the next.
func (c *Console) LogRotation(fromID, toID string, consecutiveFailures int) {
	c.Warnf("rotating model %s -> %s after %d consecutive failures", fromID, toID, consecutiveFailures)
}

// LogProgress reports throughput and ETA from the periodic progress job.
func (c *Console) LogProgress(completed, remaining int, perMinute float64, eta time.Duration) {
	if perMinute <= 0 {
		c.Infof("progress: %d completed, %d remaining, throughput n/a", completed, remaining)
		return
	}
	c.Infof("progress: %d completed, %d remaining, %.1f/min, ETA %v", completed, remaining, perMinute, eta.Round(time.Second))
}

// LogShutdown announces engine shutdown phases.
func (c *Console) LogShutdown(stage string) {
	c.Infof("shutdown: %s", stage)
}
