package servo

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

var baseCalibrationAngles = [...]int{
	0, 10, 20, 30, 40, 50, 60, 70, 80, 90,
	100, 110, 120, 130, 140, 150, 160, 170, 180,
}

// MaxCalibrationPoints bounds the size of a calibration table.
const MaxCalibrationPoints = len(baseCalibrationAngles)

// Timing of the calibration procedure.
const (
	CalibrationSpeed        = SpeedMin
	CalibrationSettle       = 300 * time.Millisecond
	CalibrationFastSamples  = 50
	CalibrationFastInterval = 10 * time.Millisecond
	CalibrationSlowSamples  = 100
	CalibrationSlowInterval = 20 * time.Millisecond
)

// BaseCalibrationAngles returns the reference mesh every joint's
// calibration table is cut from.
func BaseCalibrationAngles() []int {
	out := make([]int, len(baseCalibrationAngles))
	copy(out, baseCalibrationAngles[:])
	return out
}

// CalibrationPoint anchors a feedback reading to an angle.
type CalibrationPoint struct {
	Angle    int `json:"angle"`
	Feedback int `json:"feedback"`
}

// CalibrationTable is ordered by angle.
type CalibrationTable []CalibrationPoint

// BuildCalibrationMesh keeps the base angles inside [min, max], pins the
// first entry to min and ends the mesh on max.
func BuildCalibrationMesh(base []int, min, max int) []int {
	mesh := make([]int, 0, len(base)+1)
	for _, ang := range base {
		if ang < min || ang > max {
			continue
		}
		mesh = append(mesh, ang)
	}
	if len(mesh) == 0 {
		mesh = append(mesh, min)
	} else {
		mesh[0] = min
	}
	if mesh[len(mesh)-1] != max {
		mesh = append(mesh, max)
	}
	return mesh
}

// Angles returns the angles of the table.
func (t CalibrationTable) Angles() []int {
	out := make([]int, len(t))
	for i, p := range t {
		out[i] = p.Angle
	}
	return out
}

// Feedback returns the feedback anchors of the table.
func (t CalibrationTable) Feedback() []int {
	out := make([]int, len(t))
	for i, p := range t {
		out[i] = p.Feedback
	}
	return out
}

// Monotonic reports whether feedback never changes direction along the
// table.
func (t CalibrationTable) Monotonic() bool {
	var up, down bool
	for i := 1; i < len(t); i++ {
		switch {
		case t[i].Feedback > t[i-1].Feedback:
			up = true
		case t[i].Feedback < t[i-1].Feedback:
			down = true
		}
	}
	return !(up && down)
}

// Interpolate inverts a feedback reading into an angle. Readings at or past
// either end of the table return that end's angle. It returns false when the
// table has fewer than two points or no segment brackets the reading.
func (t CalibrationTable) Interpolate(val int) (int, bool) {
	n := len(t)
	if n < 2 {
		return 0, false
	}
	first, last := t[0].Feedback, t[n-1].Feedback
	increasing := last >= first
	lo, hi := min(first, last), max(first, last)

	if val <= lo || val >= hi {
		idx := n - 1
		if (val <= lo) == (first <= last) {
			idx = 0
		}
		return t[idx].Angle, true
	}

	for i := 0; i < n-1; i++ {
		f1, f2 := t[i].Feedback, t[i+1].Feedback
		if f1 == f2 {
			continue
		}
		var inSegment bool
		if increasing {
			inSegment = val >= f1 && val <= f2
		} else {
			inSegment = val <= f1 && val >= f2
		}
		if !inSegment {
			continue
		}
		frac := float64(val-f1) / float64(f2-f1)
		angle := float64(t[i].Angle) + frac*float64(t[i+1].Angle-t[i].Angle)
		return int(math.Round(angle)), true
	}
	return 0, false
}

// GenerateCalibrationMesh rebuilds the table skeleton from the base mesh and
// drops any previous calibration.
func (a *Actuator) GenerateCalibrationMesh() {
	mesh := BuildCalibrationMesh(baseCalibrationAngles[:], a.min, a.max)
	a.table = make(CalibrationTable, len(mesh))
	for i, ang := range mesh {
		a.table[i] = CalibrationPoint{Angle: ang}
	}
	a.calibrated = false
	a.logger.Debug("calibration mesh", zap.Int("joint", a.joint), zap.Ints("angles", mesh))
}

// CalibrationTable returns a copy of the table.
func (a *Actuator) CalibrationTable() CalibrationTable {
	out := make(CalibrationTable, len(a.table))
	copy(out, a.table)
	return out
}

// CalibrationFeedback returns the feedback anchors for persistence.
func (a *Actuator) CalibrationFeedback() []int { return a.table.Feedback() }

// Calibrated reports whether the table holds measured anchors.
func (a *Actuator) Calibrated() bool { return a.calibrated }

// LoadCalibration restores anchors saved from CalibrationFeedback. The count
// must match the current mesh.
func (a *Actuator) LoadCalibration(feedback []int) error {
	if len(feedback) != len(a.table) {
		return fmt.Errorf("%w: got %d points, mesh has %d", ErrCalibrationSize, len(feedback), len(a.table))
	}
	for i, fb := range feedback {
		a.table[i].Feedback = fb
	}
	a.calibrated = true
	a.warnNonMonotonic()
	return nil
}

// SetCalibrationTable replaces the whole table. It must have between 2 and
// MaxCalibrationPoints points, strictly increasing angles, and start and end
// on the joint range.
func (a *Actuator) SetCalibrationTable(t CalibrationTable) error {
	if len(t) < 2 || len(t) > MaxCalibrationPoints {
		return fmt.Errorf("%w: %d points", ErrInvalidTable, len(t))
	}
	if t[0].Angle != a.min || t[len(t)-1].Angle != a.max {
		return fmt.Errorf("%w: ends %d..%d, range %d..%d", ErrInvalidTable, t[0].Angle, t[len(t)-1].Angle, a.min, a.max)
	}
	for i := 1; i < len(t); i++ {
		if t[i].Angle <= t[i-1].Angle {
			return fmt.Errorf("%w: angles not increasing at %d", ErrInvalidTable, i)
		}
	}
	a.table = make(CalibrationTable, len(t))
	copy(a.table, t)
	a.calibrated = true
	a.warnNonMonotonic()
	return nil
}

func (a *Actuator) warnNonMonotonic() {
	if !a.table.Monotonic() {
		a.logger.Warn("calibration not monotonic", zap.Int("joint", a.joint), zap.Ints("feedback", a.table.Feedback()))
	}
}

type calibrationPhase int

const (
	phaseIdle calibrationPhase = iota
	phaseMoving
	phaseSettling
	phaseSampleFast
	phaseSampleSlow
)

func (p calibrationPhase) String() string {
	switch p {
	case phaseMoving:
		return "moving"
	case phaseSettling:
		return "settling"
	case phaseSampleFast:
		return "sampling (fast)"
	case phaseSampleSlow:
		return "sampling (slow)"
	default:
		return "idle"
	}
}

type calibrationRun struct {
	phase    calibrationPhase
	point    int
	samples  int
	last     time.Time
	feedback []int

	log, logInMove bool
}

func (r *calibrationRun) active() bool { return r.phase != phaseIdle }

func (r *calibrationRun) sampling() bool {
	return r.phase == phaseSampleFast || r.phase == phaseSampleSlow
}

// CalibrationProgress describes a running calibration.
type CalibrationProgress struct {
	Point int // index of the point being measured
	Total int
	Phase string
}

// StartCalibration begins measuring every table angle. Tick drives the
// procedure; logging is muted until it ends. It returns false for joints
// without feedback, mirrors, or when a calibration already runs.
func (a *Actuator) StartCalibration() bool {
	if !a.HasFeedback() || a.isMirror || a.run.active() {
		return false
	}
	if len(a.table) == 0 {
		a.GenerateCalibrationMesh()
	}

	a.run = calibrationRun{
		phase:     phaseMoving,
		feedback:  make([]int, len(a.table)),
		log:       a.log,
		logInMove: a.logInMove,
	}
	a.log, a.logInMove = false, false

	a.logger.Info("calibration started", zap.Int("joint", a.joint), zap.Int("points", len(a.table)))
	a.move(a.table[0].Angle, CalibrationSpeed)
	return true
}

// Calibrating reports whether a calibration is running.
func (a *Actuator) Calibrating() bool { return a.run.active() }

// Progress returns the state of the running calibration.
func (a *Actuator) Progress() CalibrationProgress {
	return CalibrationProgress{
		Point: a.run.point,
		Total: len(a.table),
		Phase: a.run.phase.String(),
	}
}

// CancelCalibration stops a running calibration and keeps the previous
// table.
func (a *Actuator) CancelCalibration() {
	if !a.run.active() {
		return
	}
	a.stop()
	a.endCalibration()
	a.logger.Info("calibration cancelled", zap.Int("joint", a.joint))
}

func (a *Actuator) endCalibration() {
	a.log, a.logInMove = a.run.log, a.run.logInMove
	a.run = calibrationRun{}
}

func (a *Actuator) tickCalibration(now time.Time) bool {
	r := &a.run
	switch r.phase {
	case phaseMoving:
		stepped := a.tickMotion(now)
		if !a.moving {
			r.phase, r.last = phaseSettling, now
		}
		return stepped

	case phaseSettling:
		if now.Sub(r.last) >= CalibrationSettle {
			r.phase, r.samples = phaseSampleFast, 0
		}

	case phaseSampleFast:
		if a.calibrationSample(now, CalibrationFastInterval) && r.samples == CalibrationFastSamples {
			r.phase, r.samples = phaseSampleSlow, 0
		}

	case phaseSampleSlow:
		if a.calibrationSample(now, CalibrationSlowInterval) && r.samples == CalibrationSlowSamples {
			a.recordPoint()
		}
	}
	return false
}

// calibrationSample takes one reading when the phase interval has passed.
// The first reading of a phase is immediate.
func (a *Actuator) calibrationSample(now time.Time, every time.Duration) bool {
	r := &a.run
	if r.samples > 0 && now.Sub(r.last) < every {
		return false
	}
	a.readFeedback()
	r.last = now
	r.samples++
	return true
}

func (a *Actuator) recordPoint() {
	r := &a.run
	r.feedback[r.point] = a.filter.sample()
	a.logger.Info("calibration point",
		zap.Int("joint", a.joint),
		zap.Int("point", r.point+1),
		zap.Int("angle", a.table[r.point].Angle),
		zap.Int("feedback", r.feedback[r.point]))

	r.point++
	if r.point < len(a.table) {
		r.phase = phaseMoving
		a.move(a.table[r.point].Angle, CalibrationSpeed)
		return
	}

	for i, fb := range r.feedback {
		a.table[i].Feedback = fb
	}
	a.calibrated = true
	a.endCalibration()
	a.warnNonMonotonic()
	a.logger.Info("calibration complete", zap.Int("joint", a.joint))
}
