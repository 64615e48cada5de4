// Package servo drives hobby servos as arm joints.
//
// An Actuator maps angles to PWM pulses, steps toward a target one degree at
// a time, filters analog position feedback and inverts it through a
// multi-point calibration table. A Group owns the actuators of an arm and
// links master/mirror pairs that move in lockstep with inverted angles.
//
// Nothing in this package blocks or spawns goroutines: the owner calls Tick
// from a single control loop.
package servo

import "errors"

// NoPin marks an actuator without analog feedback.
const NoPin = -1

// PWM is the pulse output of a servo controller. A pulse of 0 releases the
// channel.
type PWM interface {
	SetPulse(channel, pulse int) error
}

// AnalogReader samples the raw feedback signal of a pin.
type AnalogReader interface {
	ReadRaw(pin int) (int, error)
}

// Notifier receives every committed joint angle.
type Notifier interface {
	NotifyAngle(joint, angle int)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(joint, angle int)

// NotifyAngle calls f(joint, angle).
func (f NotifierFunc) NotifyAngle(joint, angle int) { f(joint, angle) }

type nopNotifier struct{}

func (nopNotifier) NotifyAngle(int, int) {}

var (
	ErrNotCalibratable = errors.New("servo: joint cannot be calibrated")
	ErrCalibrationSize = errors.New("servo: calibration size does not match mesh")
	ErrInvalidTable    = errors.New("servo: invalid calibration table")
	ErrUnknownJoint    = errors.New("servo: unknown joint")
	ErrSelfMirror      = errors.New("servo: joint cannot mirror itself")
	ErrMirrorChain     = errors.New("servo: mirrors cannot be chained")
	ErrMirrorTaken     = errors.New("servo: joint already linked")
)
