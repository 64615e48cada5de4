// Package cobot drives hobby servo arms with pot feedback.
//
// Every joint is a servo.Actuator that turns a target angle and speed into
// pulse-width steps, filters its analog feedback and maps it back to an angle
// through a per-joint calibration table. Joints driven by two opposed servos
// are linked as master and mirror and move in lockstep over the inverted
// range.
//
// # Installation
//
//	go install github.com/gwillem/cobot/cmd/cobot@latest
//
// # Usage
//
// Describe the wiring in cobot.yaml (without one the reference PCA9685 arm is
// assumed), then calibrate the feedback of every joint:
//
//	cobot calibrate
//
// Watch the arm, or drive it from a console:
//
//	cobot monitor
//	cobot shell
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/cobot: CLI with monitor, calibrate, shell, move, scan and info commands
//   - pkg/servo: Actuator motion, feedback, calibration and mirror groups
//   - pkg/hw: PCA9685, ADS1115, Feetech and simulated backends
//   - pkg/notify: Joint angle reports over a serial line
//   - pkg/robot: Configuration, calibration store and arm assembly
//   - pkg/control: Control loop owning the arm
package cobot
