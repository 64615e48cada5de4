package servo

import "time"

// Move starts a constant-speed move toward target. Speed is clamped to
// [SpeedMin, SpeedMax]; a target equal to the current angle starts nothing.
func (a *Actuator) Move(target, speed int) bool {
	if a.isMirror || a.run.active() {
		return false
	}
	a.move(target, speed)
	return true
}

// MoveSmooth starts a move that keeps the entry speed for the first half of
// the travel and then eases out toward the target.
func (a *Actuator) MoveSmooth(target, speed int) bool {
	if a.isMirror || a.run.active() {
		return false
	}
	a.move(target, speed)
	a.smooth = true
	half := float64(abs(a.target-a.current)) * 0.5 * float64(a.direction)
	a.activation = int(float64(a.target) - half)
	return true
}

func (a *Actuator) move(target, speed int) {
	a.target = clamp(target, a.min, a.max)
	a.speed = speed
	a.interval = SpeedToInterval(speed)
	a.smooth = false
	a.direction = sign(a.target - a.current)
	a.moving = a.direction != 0
}

func (a *Actuator) tickMotion(now time.Time) bool {
	if !a.moving || now.Sub(a.lastStep) < a.interval {
		return false
	}

	if a.smooth && a.pastActivation() {
		remaining := abs(a.target - a.current)
		span := abs(a.target - a.activation)
		a.interval = SpeedToInterval(mapRange(remaining, 1, span, clamp(a.speed-6, SpeedMin, SpeedMax), a.speed-1))
	}

	a.commit(a.current + a.direction)
	a.lastStep = now

	if a.current == a.target {
		a.moving = false
	}
	return true
}

func (a *Actuator) pastActivation() bool {
	return (a.direction > 0 && a.current >= a.activation) ||
		(a.direction < 0 && a.current <= a.activation)
}
