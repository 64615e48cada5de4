package servo

import "time"

// Pulse range in PCA9685 ticks (12 bit at 50 Hz) for 0 and 180 degrees.
const (
	PulseMin = 162
	PulseMax = 632
)

// Logical angle range of every joint, in degrees.
const (
	AngleMin = 0
	AngleMax = 180
)

// Speed window accepted by Move and MoveSmooth.
const (
	SpeedMin = 1
	SpeedMax = 10
)

// AngleToPulse maps [0, 180] degrees onto [PulseMin, PulseMax]. The angle is
// not validated.
func AngleToPulse(angle int) int {
	return mapRange(angle, AngleMin, AngleMax, PulseMin, PulseMax)
}

// SpeedToInterval converts a speed in [1, 10] to the delay between one-degree
// steps: 20ms at speed 1 down to 3ms at speed 9 and above.
func SpeedToInterval(speed int) time.Duration {
	ms := clamp(mapRange(clamp(speed, SpeedMin, SpeedMax), SpeedMin, SpeedMax, 20, 0), 3, 20)
	return time.Duration(ms) * time.Millisecond
}

// MirrorAngle returns the angle a mirror takes for a master angle.
func MirrorAngle(angle int) int {
	return mapRange(angle, AngleMin, AngleMax, AngleMax, AngleMin)
}

// mapRange rescales x with truncating integer arithmetic. An empty input
// range yields outMin.
func mapRange(x, inMin, inMax, outMin, outMax int) int {
	if inMax == inMin {
		return outMin
	}
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
