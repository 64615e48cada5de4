package notify

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gwillem/cobot/pkg/servo"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("port gone") }

// flakyWriter fails while down is set.
type flakyWriter struct {
	buf  bytes.Buffer
	down bool
}

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.down {
		return 0, errors.New("port gone")
	}
	return w.buf.Write(p)
}

func TestLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewLine(&buf, nil)
	l.NotifyAngle(1, 90)
	l.NotifyAngle(12, 0)

	assert.Equal(t, "#J1:90#\n#J12:0#\n", buf.String())
	assert.NoError(t, l.Err())
	assert.NoError(t, l.Close())
}

func TestLineKeepsErrors(t *testing.T) {
	l := NewLine(failingWriter{}, nil)
	l.NotifyAngle(1, 90)
	l.NotifyAngle(1, 91)
	assert.ErrorContains(t, l.Err(), "port gone")
	assert.ErrorContains(t, l.Err(), "2 notifications failed")
}

func TestLineErrorsStayBounded(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := &flakyWriter{down: true}
	l := NewLine(w, zap.New(core))

	for i := 0; i < 10000; i++ {
		l.NotifyAngle(1, i%180)
	}
	require.Error(t, l.Err())
	assert.Len(t, multierr.Errors(l.Err()), 1)
	assert.ErrorContains(t, l.Err(), "10000 notifications failed")
	assert.Equal(t, 1, logs.FilterMessage("notify").Len(), "one warning per outage")

	w.down = false
	l.NotifyAngle(2, 45)
	assert.NoError(t, l.Err())
	assert.Equal(t, "#J2:45#\n", w.buf.String())
	assert.Equal(t, 1, logs.FilterMessage("notify recovered").Len())
}

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	var calls int
	n := Multi(NewLine(&a, nil), nil, NewLine(&b, nil), servo.NotifierFunc(func(joint, angle int) {
		calls++
		assert.Equal(t, 3, joint)
		assert.Equal(t, 45, angle)
	}))
	n.NotifyAngle(3, 45)

	assert.Equal(t, "#J3:45#\n", a.String())
	assert.Equal(t, "#J3:45#\n", b.String())
	assert.Equal(t, 1, calls)
}
