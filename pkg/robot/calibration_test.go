package robot

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/cobot/pkg/servo"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "cal", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCalibrationRecord_Table(t *testing.T) {
	r := CalibrationRecord{
		Joint:    Elbow,
		Angles:   []int{0, 90, 180},
		Feedback: []int{100, 500, 900},
	}

	got, err := r.Table()
	require.NoError(t, err)
	want := servo.CalibrationTable{{Angle: 0, Feedback: 100}, {Angle: 90, Feedback: 500}, {Angle: 180, Feedback: 900}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Table() mismatch (-want +got):\n%s", diff)
	}

	r.Feedback = r.Feedback[:2]
	_, err = r.Table()
	assert.ErrorIs(t, err, servo.ErrCalibrationSize)
}

func TestCalibrationRecord_Apply(t *testing.T) {
	a := servo.New(nopPWM{}, servo.Config{FeedbackPin: 32, Max: 180})
	r := CalibrationRecord{
		Joint:    Elbow,
		Angles:   []int{0, 90, 180},
		Feedback: []int{100, 500, 900},
	}
	require.NoError(t, r.Apply(a))
	assert.True(t, a.Calibrated())

	a.Sample(300)
	got, ok := a.AngleFromFeedback()
	assert.True(t, ok)
	assert.Equal(t, 45, got)

	r.Angles = []int{10, 90, 180}
	assert.ErrorIs(t, r.Apply(a), servo.ErrInvalidTable)
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save(CalibrationRecord{
		Joint:    Elbow,
		Channel:  3,
		Angles:   []int{0, 90, 180},
		Feedback: []int{100, 500, 900},
	}))
	require.NoError(t, s.Save(CalibrationRecord{
		Joint:    Base,
		Channel:  0,
		Angles:   []int{0, 180},
		Feedback: []int{4000, 200},
	}))

	got, err := s.Load(Elbow)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 500, 900}, got.Feedback)
	assert.False(t, got.Updated.IsZero())

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, Base, all[0].Joint)
	assert.Equal(t, Elbow, all[1].Joint)

	// saving again replaces
	require.NoError(t, s.Save(CalibrationRecord{Joint: Elbow, Channel: 3, Angles: []int{0, 180}, Feedback: []int{1, 2}}))
	got, err = s.Load(Elbow)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got.Feedback)

	require.NoError(t, s.Delete(Elbow))
	_, err = s.Load(Elbow)
	assert.ErrorIs(t, err, ErrNotCalibrated)
	assert.ErrorIs(t, s.Delete(Elbow), ErrNotCalibrated)
}
