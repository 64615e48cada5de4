package servo

import (
	"time"

	"go.uber.org/zap"
)

// FeedbackInterval is the default period between feedback samples in Tick.
const FeedbackInterval = 30 * time.Millisecond

// Config describes the wiring and limits of one joint.
type Config struct {
	Channel     int // PWM output channel
	Joint       int // joint id reported to the notifier
	FeedbackPin int // analog input, NoPin when absent
	Min, Max    int // allowed angle range, inclusive
	Initial     int // angle assumed at startup

	// Raw feedback span used before calibration. When equal, the observed
	// span of the filtered signal is used instead.
	PotMin, PotMax int
}

// Option configures an Actuator.
type Option func(*Actuator)

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Actuator) { a.logger = l }
}

// WithNotifier sets the sink for committed angles.
func WithNotifier(n Notifier) Option {
	return func(a *Actuator) { a.notifier = n }
}

// WithAnalogReader sets the feedback input. Without one the actuator only
// sees samples passed to Sample.
func WithAnalogReader(r AnalogReader) Option {
	return func(a *Actuator) { a.adc = r }
}

// WithFeedbackInterval overrides FeedbackInterval.
func WithFeedbackInterval(d time.Duration) Option {
	return func(a *Actuator) { a.feedbackInterval = d }
}

// Actuator controls a single servo joint.
type Actuator struct {
	pwm      PWM
	adc      AnalogReader
	notifier Notifier
	logger   *zap.Logger

	channel     int
	joint       int
	feedbackPin int
	min, max    int

	// motion
	current    int
	target     int
	speed      int
	direction  int
	interval   time.Duration
	moving     bool
	smooth     bool
	activation int
	lastStep   time.Time

	// feedback
	filter           feedbackFilter
	potMin, potMax   int
	feedbackInterval time.Duration
	lastSample       time.Time

	table      CalibrationTable
	calibrated bool
	run        calibrationRun

	isMirror  bool
	hasMirror bool

	log       bool
	logInMove bool
}

// New creates an actuator on pwm. The range is clipped to [0, 180] and the
// initial angle to the range. Nothing is written until Attach or Write.
func New(pwm PWM, cfg Config, opts ...Option) *Actuator {
	lo, hi := clamp(cfg.Min, AngleMin, AngleMax), clamp(cfg.Max, AngleMin, AngleMax)
	if lo > hi {
		lo, hi = hi, lo
	}
	pin := cfg.FeedbackPin
	if pin < 0 {
		pin = NoPin
	}

	a := &Actuator{
		pwm:              pwm,
		notifier:         nopNotifier{},
		logger:           zap.NewNop(),
		channel:          cfg.Channel,
		joint:            cfg.Joint,
		feedbackPin:      pin,
		min:              lo,
		max:              hi,
		current:          clamp(cfg.Initial, lo, hi),
		interval:         SpeedToInterval(SpeedMin),
		potMin:           cfg.PotMin,
		potMax:           cfg.PotMax,
		feedbackInterval: FeedbackInterval,
		logInMove:        true,
	}
	a.target = a.current
	for _, opt := range opts {
		opt(a)
	}
	a.GenerateCalibrationMesh()
	return a
}

// Attach drives the servo to its current angle. Linked mirrors only follow
// through Group.Attach.
func (a *Actuator) Attach() bool {
	return a.Write(a.current)
}

// Detach releases the PWM channel and stops any motion. It does not detach a
// linked mirror; use Group.Detach for linked joints.
func (a *Actuator) Detach() {
	a.stop()
	a.emit(0)
}

// Write moves the servo to angle at once, cancelling any profiled move.
// Mirrors and calibrating actuators ignore it. A linked mirror follows only
// when the write goes through Group.Write.
func (a *Actuator) Write(angle int) bool {
	if a.isMirror || a.run.active() {
		return false
	}
	a.commit(angle)
	a.stop()
	return true
}

// SetPulseRaw writes an uncalibrated pulse without changing the tracked
// angle.
func (a *Actuator) SetPulseRaw(pulse int) bool {
	if a.isMirror || a.run.active() {
		return false
	}
	a.emit(pulse)
	if a.logInMove && !a.log {
		a.display()
	}
	return true
}

// SetAngle overrides the tracked angle without moving the servo, e.g. to
// restore a remembered pose.
func (a *Actuator) SetAngle(angle int) {
	a.current = clamp(angle, a.min, a.max)
	a.stop()
}

// followMaster applies a master-originated angle. It is the only path that
// reaches a mirror.
func (a *Actuator) followMaster(angle int) {
	a.commit(angle)
	a.stop()
}

// commit clamps, outputs and reports an angle.
func (a *Actuator) commit(angle int) {
	a.current = clamp(angle, a.min, a.max)
	a.emit(AngleToPulse(a.current))

	// only masters and plain joints report state
	if a.isMirror {
		return
	}
	a.notifier.NotifyAngle(a.joint, a.current)
	if a.logInMove && !a.log {
		a.display()
	}
}

func (a *Actuator) emit(pulse int) {
	if err := a.pwm.SetPulse(a.channel, pulse); err != nil {
		a.logger.Warn("set pulse",
			zap.Int("joint", a.joint),
			zap.Int("channel", a.channel),
			zap.Int("pulse", pulse),
			zap.Error(err))
	}
}

func (a *Actuator) stop() {
	a.target = a.current
	a.direction = 0
	a.moving = false
	a.smooth = false
}

// Tick runs one scheduler pass: at most one feedback sample, then either one
// calibration step or at most one motion step. It reports whether the angle
// changed. While sampling calibration points the calibration cadence replaces
// the periodic sample.
//
// Tick does not reach linked mirrors; drive linked joints through Group.
func (a *Actuator) Tick(now time.Time) bool {
	if a.HasFeedback() && !a.run.sampling() && now.Sub(a.lastSample) >= a.feedbackInterval {
		a.lastSample = now
		a.readFeedback()
	}

	var stepped bool
	if a.run.active() {
		stepped = a.tickCalibration(now)
	} else {
		stepped = a.tickMotion(now)
	}

	if a.log {
		a.display()
	}
	return stepped
}

// SetLog enables a diagnostic line on every Tick.
func (a *Actuator) SetLog(on bool) { a.log = on }

// SetLogInMove enables a diagnostic line on every committed angle.
func (a *Actuator) SetLogInMove(on bool) { a.logInMove = on }

func (a *Actuator) display() {
	fields := []zap.Field{
		zap.Int("joint", a.joint),
		zap.Int("angle", a.current),
	}
	if role := a.role(); role != "" {
		fields = append(fields, zap.String("role", role))
	}
	if a.HasFeedback() {
		fb, _ := a.AngleFromFeedback()
		fields = append(fields, zap.Int("raw", a.filter.sample()), zap.Int("feedback", fb))
	}
	a.logger.Info("joint", fields...)
}

func (a *Actuator) role() string {
	switch {
	case a.isMirror:
		return "mirror"
	case a.hasMirror:
		return "master"
	}
	return ""
}

// Angle returns the last committed angle.
func (a *Actuator) Angle() int { return a.current }

// Target returns the angle of the current or last move.
func (a *Actuator) Target() int { return a.target }

// Moving reports whether a move is in progress.
func (a *Actuator) Moving() bool { return a.moving }

// Direction returns -1, 0 or +1.
func (a *Actuator) Direction() int { return a.direction }

// Interval returns the current delay between steps.
func (a *Actuator) Interval() time.Duration { return a.interval }

// ActivationAngle returns the angle where a smooth move starts ramping, and
// whether the last move was smooth.
func (a *Actuator) ActivationAngle() (int, bool) { return a.activation, a.smooth }

// Joint returns the joint id.
func (a *Actuator) Joint() int { return a.joint }

// Channel returns the PWM channel.
func (a *Actuator) Channel() int { return a.channel }

// Range returns the allowed angle range.
func (a *Actuator) Range() (min, max int) { return a.min, a.max }

// IsMirror reports whether the actuator only follows a master.
func (a *Actuator) IsMirror() bool { return a.isMirror }
