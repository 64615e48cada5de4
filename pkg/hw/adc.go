package hw

import (
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// ADC reads joint feedback from periph analog pins, keyed by the feedback
// pin number used in the joint configuration.
type ADC struct {
	pins map[int]analog.PinADC
	bus  i2c.BusCloser
}

// NewADC wraps already opened analog pins.
func NewADC(pins map[int]analog.PinADC) *ADC {
	return &ADC{pins: pins}
}

// ReadRaw implements servo.AnalogReader.
func (a *ADC) ReadRaw(pin int) (int, error) {
	p, ok := a.pins[pin]
	if !ok {
		return 0, wrap("adc", fmt.Errorf("%w: pin %d", ErrNoChannel, pin))
	}
	s, err := p.Read()
	if err != nil {
		return 0, wrap("adc", err)
	}
	return int(s.Raw), nil
}

// Close halts every pin and releases the bus when it was opened by
// OpenADS1115.
func (a *ADC) Close() error {
	var err error
	for _, p := range a.pins {
		err = multierr.Append(err, p.Halt())
	}
	if a.bus != nil {
		err = multierr.Append(err, a.bus.Close())
	}
	return err
}

var singleEnded = [...]ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

// OpenADS1115 opens an ADS1115 on the named I²C bus and maps feedback pins
// to its single ended channels 0..3.
func OpenADS1115(busName string, addr uint16, channels map[int]int) (*ADC, error) {
	if _, err := host.Init(); err != nil {
		return nil, wrap("ads1115", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, wrap("ads1115", err)
	}

	opts := ads1x15.DefaultOpts
	opts.I2cAddress = addr
	dev, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, wrap("ads1115", err)
	}

	pins := make(map[int]analog.PinADC, len(channels))
	for pin, ch := range channels {
		if ch < 0 || ch >= len(singleEnded) {
			bus.Close()
			return nil, wrap("ads1115", fmt.Errorf("%w: channel %d", ErrNoChannel, ch))
		}
		p, err := dev.PinForChannel(singleEnded[ch], 3300*physic.MilliVolt, 475*physic.Hertz, ads1x15.SaveEnergy)
		if err != nil {
			bus.Close()
			return nil, wrap("ads1115", err)
		}
		pins[pin] = p
	}
	return &ADC{pins: pins, bus: bus}, nil
}
