// Package robot assembles an arm from its configuration: the PWM and
// feedback backends, one servo.Actuator per channel and the mirror links.
package robot

// JointName identifies a servo channel of the arm.
type JointName string

// Channels of the default six joint arm. The shoulder is driven by two
// servos facing each other.
const (
	Base           JointName = "base"
	Shoulder       JointName = "shoulder"
	ShoulderMirror JointName = "shoulder_mirror"
	Elbow          JointName = "elbow"
	WristPitch     JointName = "wrist_pitch"
	WristRoll      JointName = "wrist_roll"
	Gripper        JointName = "gripper"
	Aux            JointName = "aux"
)

// AllJoints returns all joint names in channel order (0-7).
func AllJoints() []JointName {
	return []JointName{
		Base,
		Shoulder,
		ShoulderMirror,
		Elbow,
		WristPitch,
		WristRoll,
		Gripper,
		Aux,
	}
}
