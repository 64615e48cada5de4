// Package hw binds servo.PWM and servo.AnalogReader to real controllers: a
// PCA9685 on I²C, ADS1x15 analog inputs, or Feetech serial bus servos.
package hw

import (
	"errors"
	"fmt"
)

// ErrNoChannel is returned for a channel or pin the backend does not know.
var ErrNoChannel = errors.New("hw: unknown channel")

func wrap(dev string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", dev, err)
}
