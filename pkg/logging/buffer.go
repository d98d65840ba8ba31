package logging

import (
	"strings"
	"sync"
)

const captureDepth = 32

// LineCapture is a thread-safe writer that keeps the most recent lines written to it.
type LineCapture struct {
	mu    sync.RWMutex
	lines []string
}

// ServerCapture holds recent INFO+ server log lines for the status line of the shell.
var ServerCapture = &LineCapture{}

// EventCapture holds recent tour event log lines.
var EventCapture = &LineCapture{}

// Write implements io.Writer. Each call is stored as one line.
func (c *LineCapture) Write(p []byte) (n int, err error) {
	line := strings.TrimRight(string(p), "\n")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	if len(c.lines) > captureDepth {
		c.lines = c.lines[len(c.lines)-captureDepth:]
	}
	return len(p), nil
}

// Last returns the most recent line, or "" when nothing was written.
func (c *LineCapture) Last() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.lines) == 0 {
		return ""
	}
	return c.lines[len(c.lines)-1]
}

// Recent returns up to n lines, newest last.
func (c *LineCapture) Recent(n int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || n > len(c.lines) {
		n = len(c.lines)
	}
	out := make([]string, n)
	copy(out, c.lines[len(c.lines)-n:])
	return out
}
