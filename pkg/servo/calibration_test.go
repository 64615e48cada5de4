package servo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCalibrationMesh(t *testing.T) {
	base := BaseCalibrationAngles()
	tests := []struct {
		name     string
		min, max int
		want     []int
	}{
		{"full", 0, 180, base},
		{"inner ends", 15, 165, []int{15, 30, 40, 50, 60, 70, 80, 90, 100, 110, 120, 130, 140, 150, 160, 165}},
		{"on grid", 30, 60, []int{30, 40, 50, 60}},
		{"below grid step", 11, 19, []int{11, 19}},
		{"single angle", 50, 50, []int{50}},
		{"max only appended", 0, 175, append(base[:18:18], 175)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCalibrationMesh(base, tt.min, tt.max)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("BuildCalibrationMesh(%d, %d) mismatch (-want +got):\n%s", tt.min, tt.max, diff)
			}
			assert.LessOrEqual(t, len(got), MaxCalibrationPoints)
		})
	}
}

func TestBaseCalibrationAnglesIsCopy(t *testing.T) {
	a := BaseCalibrationAngles()
	a[0] = 99
	assert.Equal(t, 0, BaseCalibrationAngles()[0])
}

func threePointTable() CalibrationTable {
	return CalibrationTable{{0, 100}, {90, 500}, {180, 900}}
}

func TestAngleFromFeedbackCalibrated(t *testing.T) {
	tests := []struct {
		raw, want int
	}{
		{500, 90},
		{300, 45},
		{50, 0},
		{950, 180},
		{100, 0},
		{900, 180},
		{700, 135},
		{101, 0},
		{103, 1},
	}
	for _, tt := range tests {
		a := New(&recorder{}, Config{FeedbackPin: 4, Min: 0, Max: 180})
		require.NoError(t, a.SetCalibrationTable(threePointTable()))
		a.Sample(tt.raw)
		got, ok := a.AngleFromFeedback()
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "raw %d", tt.raw)
	}
}

func TestInterpolateDecreasing(t *testing.T) {
	table := CalibrationTable{{0, 900}, {90, 500}, {180, 100}}
	tests := []struct {
		raw, want int
	}{
		{950, 0},
		{50, 180},
		{700, 45},
		{300, 135},
	}
	for _, tt := range tests {
		got, ok := table.Interpolate(tt.raw)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "raw %d", tt.raw)
	}
}

func TestInterpolateSkipsFlatSegments(t *testing.T) {
	table := CalibrationTable{{0, 100}, {10, 200}, {20, 200}, {30, 400}}
	got, ok := table.Interpolate(300)
	assert.True(t, ok)
	assert.Equal(t, 25, got)
}

func TestNonMonotonicTableUsesFirstBracket(t *testing.T) {
	table := CalibrationTable{{0, 100}, {90, 800}, {120, 500}, {180, 900}}
	assert.False(t, table.Monotonic())
	assert.True(t, threePointTable().Monotonic())

	a := New(&recorder{}, Config{FeedbackPin: 4, Min: 0, Max: 180, Initial: 77})
	require.NoError(t, a.SetCalibrationTable(table))
	a.Sample(600)
	got, ok := a.AngleFromFeedback()
	assert.True(t, ok)
	assert.Equal(t, 64, got)
}

func TestInterpolateTooSmall(t *testing.T) {
	_, ok := CalibrationTable{{0, 100}}.Interpolate(100)
	assert.False(t, ok)
}

func TestAngleFromFeedbackClampsToRange(t *testing.T) {
	a := New(&recorder{}, Config{FeedbackPin: 4, Min: 30, Max: 150})
	require.NoError(t, a.SetCalibrationTable(CalibrationTable{{30, 100}, {150, 900}}))
	a.Sample(2000)
	got, _ := a.AngleFromFeedback()
	assert.Equal(t, 150, got)
}

func TestAngleFromFeedbackUncalibrated(t *testing.T) {
	t.Run("pot range", func(t *testing.T) {
		a := New(&recorder{}, Config{FeedbackPin: 4, Min: 0, Max: 180, PotMin: 0, PotMax: 4000})
		a.Sample(2000)
		got, ok := a.AngleFromFeedback()
		assert.True(t, ok)
		assert.Equal(t, 90, got)

		a = New(&recorder{}, Config{FeedbackPin: 4, Min: 0, Max: 180, PotMin: 0, PotMax: 4000})
		a.Sample(5000)
		got, _ = a.AngleFromFeedback()
		assert.Equal(t, 180, got)
	})

	t.Run("observed range", func(t *testing.T) {
		a := New(&recorder{}, Config{FeedbackPin: 4, Min: 0, Max: 180, Initial: 33})
		a.Sample(1000)
		got, _ := a.AngleFromFeedback()
		assert.Equal(t, 33, got, "single reading has no span")

		for i := 0; i < 200; i++ {
			a.Sample(3000)
		}
		got, _ = a.AngleFromFeedback()
		assert.Equal(t, 180, got)
	})

	t.Run("no feedback", func(t *testing.T) {
		a := New(&recorder{}, Config{FeedbackPin: NoPin, Min: 0, Max: 180})
		a.Sample(100)
		_, ok := a.AngleFromFeedback()
		assert.False(t, ok)
		_, ok = a.Feedback()
		assert.False(t, ok)
	})
}

func TestFeedbackFilter(t *testing.T) {
	a := New(&recorder{}, Config{FeedbackPin: 1, Min: 0, Max: 180})
	a.Sample(1000)
	fb, _ := a.Feedback()
	assert.Equal(t, 1000, fb)

	a.Sample(2000)
	fb, _ = a.Feedback()
	assert.Equal(t, 1100, fb)

	for i := 0; i < 200; i++ {
		a.Sample(2000)
	}
	fb, _ = a.Feedback()
	assert.Equal(t, 2000, fb)
}

func TestTickSamplesOnFeedbackInterval(t *testing.T) {
	reads := 0
	adc := analogFunc(func(pin int) (int, error) {
		assert.Equal(t, 6, pin)
		reads++
		return 100, nil
	})
	a := New(&recorder{}, Config{FeedbackPin: 6, Min: 0, Max: 180}, WithAnalogReader(adc))

	for ms := 0; ms < 100; ms++ {
		a.Tick(epoch.Add(time.Duration(ms) * time.Millisecond))
	}
	assert.Equal(t, 4, reads) // 0, 30, 60, 90
}

func TestTickSkipsFailedReads(t *testing.T) {
	adc := analogFunc(func(int) (int, error) { return 0, errors.New("adc busy") })
	a := New(&recorder{}, Config{FeedbackPin: 6, Min: 0, Max: 180, Initial: 12}, WithAnalogReader(adc))
	a.Tick(epoch)
	fb, ok := a.Feedback()
	assert.True(t, ok)
	assert.Equal(t, 0, fb)
}

func TestLoadCalibration(t *testing.T) {
	a := New(&recorder{}, Config{FeedbackPin: 2, Min: 0, Max: 40})
	assert.Equal(t, []int{0, 10, 20, 30, 40}, a.CalibrationTable().Angles())
	assert.False(t, a.Calibrated())

	err := a.LoadCalibration([]int{1, 2, 3})
	assert.ErrorIs(t, err, ErrCalibrationSize)
	assert.False(t, a.Calibrated())

	require.NoError(t, a.LoadCalibration([]int{100, 200, 300, 400, 500}))
	assert.True(t, a.Calibrated())
	assert.Equal(t, []int{100, 200, 300, 400, 500}, a.CalibrationFeedback())

	a.Sample(250)
	got, _ := a.AngleFromFeedback()
	assert.Equal(t, 15, got)

	a.GenerateCalibrationMesh()
	assert.False(t, a.Calibrated())
}

func TestSetCalibrationTableValidation(t *testing.T) {
	a := New(&recorder{}, Config{FeedbackPin: 2, Min: 0, Max: 180})
	assert.ErrorIs(t, a.SetCalibrationTable(CalibrationTable{{0, 1}}), ErrInvalidTable)
	assert.ErrorIs(t, a.SetCalibrationTable(CalibrationTable{{10, 1}, {180, 2}}), ErrInvalidTable)
	assert.ErrorIs(t, a.SetCalibrationTable(CalibrationTable{{0, 1}, {90, 2}, {90, 3}, {180, 4}}), ErrInvalidTable)
	assert.NoError(t, a.SetCalibrationTable(threePointTable()))
}

// linearPot simulates a pot reading 100 + 4 counts per degree of the
// actuator's committed angle.
func linearPot(a **Actuator) AnalogReader {
	return analogFunc(func(int) (int, error) {
		return 100 + 4*(*a).Angle(), nil
	})
}

func TestCalibrationStateMachine(t *testing.T) {
	var a *Actuator
	n := &notes{}
	a = New(&recorder{}, Config{Joint: 3, FeedbackPin: 5, Min: 20, Max: 60, Initial: 40},
		WithAnalogReader(linearPot(&a)), WithNotifier(n))
	a.SetLog(true)
	a.SetLogInMove(true)

	require.True(t, a.StartCalibration())
	assert.False(t, a.StartCalibration(), "already running")
	assert.True(t, a.Calibrating())
	assert.False(t, a.Write(10))
	assert.False(t, a.Move(10, 5))
	assert.False(t, a.log)
	assert.False(t, a.logInMove)

	now := epoch
	for i := 0; a.Calibrating(); i++ {
		require.Less(t, i, 1000000)
		a.Tick(now)
		now = now.Add(time.Millisecond)
	}

	assert.True(t, a.Calibrated())
	assert.True(t, a.log, "logging restored")
	assert.True(t, a.logInMove)
	want := CalibrationTable{{20, 180}, {30, 220}, {40, 260}, {50, 300}, {60, 340}}
	if diff := cmp.Diff(want, a.CalibrationTable()); diff != "" {
		t.Errorf("calibration table mismatch (-want +got):\n%s", diff)
	}

	// 5 points at 300ms settle + 50x10ms + 100x20ms each, plus travel
	assert.Greater(t, now.Sub(epoch), 5*(300+500+2000)*time.Millisecond)

	// the pot now inverts through the table
	a.Write(45)
	for i := 0; i < 100; i++ {
		a.Sample(100 + 4*45)
	}
	got, _ := a.AngleFromFeedback()
	assert.Equal(t, 45, got)
}

func TestCalibrationTakesOneSamplePerTick(t *testing.T) {
	var a *Actuator
	reads := 0
	pot := linearPot(&a)
	adc := analogFunc(func(pin int) (int, error) {
		reads++
		return pot.ReadRaw(pin)
	})
	a = New(&recorder{}, Config{FeedbackPin: 5, Min: 20, Max: 60, Initial: 40}, WithAnalogReader(adc))
	require.True(t, a.StartCalibration())

	now := epoch
	for i := 0; a.Calibrating(); i++ {
		require.Less(t, i, 100000)
		reads = 0
		a.Tick(now)
		require.LessOrEqual(t, reads, 1, "tick %d", i)
		now = now.Add(5 * time.Millisecond)
	}
	assert.True(t, a.Calibrated())
}

func TestCalibrationRequiresFeedback(t *testing.T) {
	a := New(&recorder{}, Config{FeedbackPin: NoPin, Min: 0, Max: 180})
	assert.False(t, a.StartCalibration())
	assert.False(t, a.Calibrating())
}

func TestCancelCalibrationKeepsTable(t *testing.T) {
	var a *Actuator
	a = New(&recorder{}, Config{FeedbackPin: 5, Min: 0, Max: 180, Initial: 90}, WithAnalogReader(linearPot(&a)))
	require.NoError(t, a.SetCalibrationTable(threePointTable()))

	require.True(t, a.StartCalibration())
	now := epoch
	for i := 0; i < 500; i++ {
		a.Tick(now)
		now = now.Add(time.Millisecond)
	}
	assert.True(t, a.Calibrating())
	a.CancelCalibration()

	assert.False(t, a.Calibrating())
	assert.False(t, a.Moving())
	assert.True(t, a.logInMove)
	assert.Equal(t, threePointTable(), a.CalibrationTable())
	assert.True(t, a.Calibrated())
}

func TestGroupCalibrateWithFakeClock(t *testing.T) {
	var a *Actuator
	a = New(&recorder{}, Config{FeedbackPin: 5, Min: 0, Max: 10, Initial: 0}, WithAnalogReader(linearPot(&a)))
	g := NewGroup(a)
	clock := clockwork.NewFakeClock()

	done := make(chan error, 1)
	go func() {
		done <- g.Calibrate(context.Background(), 0, clock, time.Millisecond)
	}()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			assert.Equal(t, []int{100, 140}, a.CalibrationFeedback())
			return
		case <-deadline:
			t.Fatal("calibration did not finish")
		default:
			clock.Advance(time.Millisecond)
			time.Sleep(10 * time.Microsecond)
		}
	}
}

func TestGroupCalibrateCancelled(t *testing.T) {
	var a *Actuator
	a = New(&recorder{}, Config{FeedbackPin: 5, Min: 0, Max: 180}, WithAnalogReader(linearPot(&a)))
	g := NewGroup(a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Calibrate(ctx, 0, clockwork.NewFakeClock(), time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, a.Calibrating())
	assert.False(t, a.Calibrated())
}

func TestGroupCalibrateRejectsMirror(t *testing.T) {
	g := NewGroup(
		New(&recorder{}, Config{FeedbackPin: 1, Min: 0, Max: 180}),
		New(&recorder{}, Config{FeedbackPin: 2, Min: 0, Max: 180}),
	)
	require.NoError(t, g.Link(0, 1))
	err := g.Calibrate(context.Background(), 1, clockwork.NewFakeClock(), time.Millisecond)
	assert.ErrorIs(t, err, ErrNotCalibratable)
}
