package hw

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"
)

// DefaultPCA9685Addr is the factory address of the board.
const DefaultPCA9685Addr uint16 = 0x40

// ServoFrequency is the PWM frequency the pulse range is computed for.
const ServoFrequency = 50 * physic.Hertz

// PCA9685 drives servos on a 16 channel PCA9685. Pulses are 12 bit off
// counts with the on edge at 0.
type PCA9685 struct {
	dev *pca9685.Dev
	bus i2c.BusCloser
}

// NewPCA9685 initializes the board on bus.
func NewPCA9685(bus i2c.Bus, addr uint16, freq physic.Frequency) (*PCA9685, error) {
	dev, err := pca9685.NewI2C(bus, addr)
	if err != nil {
		return nil, wrap("pca9685", err)
	}
	if err := dev.SetPwmFreq(freq); err != nil {
		return nil, wrap("pca9685", err)
	}
	return &PCA9685{dev: dev}, nil
}

// OpenPCA9685 initializes the host drivers, opens the named I²C bus ("" for
// the first one) and the board on it. Close releases the bus.
func OpenPCA9685(busName string, addr uint16, freq physic.Frequency) (*PCA9685, error) {
	if _, err := host.Init(); err != nil {
		return nil, wrap("pca9685", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, wrap("pca9685", err)
	}
	p, err := NewPCA9685(bus, addr, freq)
	if err != nil {
		bus.Close()
		return nil, err
	}
	p.bus = bus
	return p, nil
}

// SetPulse implements servo.PWM. A pulse of 0 turns the channel off.
func (p *PCA9685) SetPulse(channel, pulse int) error {
	if channel < 0 || channel > 15 {
		return wrap("pca9685", ErrNoChannel)
	}
	return wrap("pca9685", p.dev.SetPwm(channel, 0, gpio.Duty(pulse)))
}

// Halt turns every channel off.
func (p *PCA9685) Halt() error {
	return wrap("pca9685", p.dev.SetAllPwm(0, 0))
}

// Close releases the bus when it was opened by OpenPCA9685.
func (p *PCA9685) Close() error {
	if p.bus == nil {
		return nil
	}
	return p.bus.Close()
}
