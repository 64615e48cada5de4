package servo

import (
	"math"

	"go.uber.org/zap"
)

// Alpha is the weight of a new raw sample in the feedback filter.
const Alpha = 0.1

// feedbackFilter is an exponential moving average that also remembers the
// span it has covered.
type feedbackFilter struct {
	value  float64
	lo, hi float64
	primed bool
}

func (f *feedbackFilter) add(raw int) {
	if !f.primed {
		f.value, f.lo, f.hi = float64(raw), float64(raw), float64(raw)
		f.primed = true
		return
	}
	f.value = Alpha*float64(raw) + (1-Alpha)*f.value
	f.lo = math.Min(f.lo, f.value)
	f.hi = math.Max(f.hi, f.value)
}

func (f *feedbackFilter) sample() int {
	return int(math.Round(f.value))
}

// HasFeedback reports whether the joint has an analog feedback pin.
func (a *Actuator) HasFeedback() bool { return a.feedbackPin != NoPin }

// FeedbackPin returns the analog pin or NoPin.
func (a *Actuator) FeedbackPin() int { return a.feedbackPin }

// Sample feeds one raw reading into the filter.
func (a *Actuator) Sample(raw int) {
	if !a.HasFeedback() {
		return
	}
	a.filter.add(raw)
}

// Feedback returns the filtered raw reading.
func (a *Actuator) Feedback() (int, bool) {
	if !a.HasFeedback() {
		return 0, false
	}
	return a.filter.sample(), true
}

func (a *Actuator) readFeedback() {
	if a.adc == nil {
		return
	}
	raw, err := a.adc.ReadRaw(a.feedbackPin)
	if err != nil {
		a.logger.Warn("read feedback",
			zap.Int("joint", a.joint),
			zap.Int("pin", a.feedbackPin),
			zap.Error(err))
		return
	}
	a.filter.add(raw)
}

// AngleFromFeedback converts the filtered reading into an angle. Before
// calibration the reading is rescaled linearly from the pot span; afterwards
// the calibration table is interpolated. The result is always inside the
// joint range. It returns false when the joint has no feedback.
func (a *Actuator) AngleFromFeedback() (int, bool) {
	if !a.HasFeedback() {
		return 0, false
	}
	val := a.filter.sample()

	if !a.calibrated || len(a.table) < 2 {
		return a.rescale(val), true
	}

	angle, ok := a.table.Interpolate(val)
	if !ok {
		// No segment brackets the reading: report the commanded angle. This
		// is not a measurement.
		angle = a.current
	}
	return clamp(angle, a.min, a.max), true
}

func (a *Actuator) rescale(val int) int {
	lo, hi := a.potMin, a.potMax
	if lo == hi {
		lo, hi = int(math.Round(a.filter.lo)), int(math.Round(a.filter.hi))
	}
	if lo == hi {
		return a.current
	}
	return clamp(mapRange(val, lo, hi, a.min, a.max), a.min, a.max)
}
