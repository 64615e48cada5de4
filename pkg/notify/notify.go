// Package notify delivers committed joint angles to a host.
package notify

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/gwillem/cobot/pkg/servo"
)

// Line writes one `#J<joint>:<angle>#` line per notification.
type Line struct {
	mu     sync.Mutex
	w      io.Writer
	logger *zap.Logger

	// last write error and the number of failed writes since the last
	// success
	err      error
	failures int
}

// NewLine returns a notifier writing to w. Write errors never stop the
// caller: the first failure of a run is logged and the latest is kept for
// Err.
func NewLine(w io.Writer, logger *zap.Logger) *Line {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Line{w: w, logger: logger}
}

// OpenSerial opens a serial port and returns a Line notifier on it.
func OpenSerial(port string, baud int, logger *zap.Logger) (*Line, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open notify port %s: %w", port, err)
	}
	return NewLine(p, logger), nil
}

// Format renders the notification line for a joint angle.
func Format(joint, angle int) string {
	return fmt.Sprintf("#J%d:%d#\n", joint, angle)
}

// NotifyAngle implements servo.Notifier.
func (l *Line) NotifyAngle(joint, angle int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := io.WriteString(l.w, Format(joint, angle))
	if err == nil {
		if l.failures > 0 {
			l.logger.Info("notify recovered", zap.Int("failures", l.failures))
		}
		l.err, l.failures = nil, 0
		return
	}
	if l.failures == 0 {
		l.logger.Warn("notify", zap.Int("joint", joint), zap.Int("angle", angle), zap.Error(err))
	}
	l.err = err
	l.failures++
}

// Err returns the latest write error while writes keep failing, or nil once
// a write succeeds again.
func (l *Line) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		return nil
	}
	return fmt.Errorf("%d notifications failed: %w", l.failures, l.err)
}

// Close closes the underlying writer if it is a closer.
func (l *Line) Close() error {
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type multi []servo.Notifier

func (m multi) NotifyAngle(joint, angle int) {
	for _, n := range m {
		n.NotifyAngle(joint, angle)
	}
}

// Multi fans a notification out to every non-nil notifier.
func Multi(notifiers ...servo.Notifier) servo.Notifier {
	var m multi
	for _, n := range notifiers {
		if n != nil {
			m = append(m, n)
		}
	}
	return m
}
