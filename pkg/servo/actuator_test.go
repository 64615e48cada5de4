package servo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetPulseRaw(t *testing.T) {
	rec := &recorder{}
	a := New(rec, Config{Channel: 4, Max: 180, Initial: 90})

	require.True(t, a.SetPulseRaw(300))
	got, _ := rec.last(4)
	assert.Equal(t, 300, got)
	assert.Equal(t, 90, a.Angle(), "raw pulses do not move the tracked angle")

	g := NewGroup(New(rec, Config{Channel: 0, Max: 180}), a)
	require.NoError(t, g.Link(0, 1))
	assert.False(t, a.SetPulseRaw(200))
}

func TestSetAngleIsSilent(t *testing.T) {
	rec := &recorder{}
	n := &notes{}
	a := New(rec, Config{Max: 180, Initial: 90}, WithNotifier(n))
	a.Move(120, 5)

	a.SetAngle(200)
	assert.Equal(t, 180, a.Angle())
	assert.False(t, a.Moving())
	assert.Empty(t, rec.pulses)
	assert.Empty(t, n.got)
}

// jointLines drains the observer and keeps the diagnostic lines.
func jointLines(logs *observer.ObservedLogs) []observer.LoggedEntry {
	var lines []observer.LoggedEntry
	for _, e := range logs.TakeAll() {
		if e.Message == "joint" {
			lines = append(lines, e)
		}
	}
	return lines
}

func TestDiagnosticLines(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	master := New(&recorder{}, Config{Channel: 1, Joint: 2, FeedbackPin: NoPin, Max: 180, Initial: 90}, WithLogger(logger))
	mirror := New(&recorder{}, Config{Channel: 2, Joint: 2, FeedbackPin: NoPin, Max: 180}, WithLogger(logger))
	g := NewGroup(master, mirror)
	require.NoError(t, g.Link(0, 1))

	// logging in move is on by default; only the master reports
	g.Write(0, 100)
	lines := jointLines(logs)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(100), lines[0].ContextMap()["angle"])
	assert.Equal(t, "master", lines[0].ContextMap()["role"])

	master.SetLogInMove(false)
	g.Write(0, 101)
	assert.Empty(t, jointLines(logs))

	mirror.SetLog(true)
	g.Tick(epoch)
	lines = jointLines(logs)
	require.Len(t, lines, 1)
	assert.Equal(t, "mirror", lines[0].ContextMap()["role"])
	assert.Equal(t, int64(79), lines[0].ContextMap()["angle"])
}

func TestDiagnosticLineFeedbackFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := New(&recorder{}, Config{FeedbackPin: 32, Max: 180, PotMin: 0, PotMax: 1800},
		WithLogger(zap.New(core)),
		WithAnalogReader(analogFunc(func(int) (int, error) { return 900, nil })))
	a.SetLog(true)
	a.Tick(epoch)

	lines := logs.FilterMessage("joint").All()
	require.Len(t, lines, 1)
	fields := lines[0].ContextMap()
	assert.Equal(t, int64(900), fields["raw"])
	assert.Equal(t, int64(90), fields["feedback"])
	assert.NotContains(t, fields, "role")
}
