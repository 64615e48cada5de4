package hw

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.uber.org/multierr"

	"github.com/gwillem/cobot/pkg/servo"
)

// FeetechConfig describes a Feetech STS bus.
type FeetechConfig struct {
	Port     string
	BaudRate int
	MinID    int
	MaxID    int

	// Raw positions reached at servo.PulseMin and servo.PulseMax.
	RangeMin, RangeMax int

	Timeout time.Duration
}

func (c *FeetechConfig) defaults() {
	if c.BaudRate == 0 {
		c.BaudRate = 1_000_000
	}
	if c.MinID == 0 && c.MaxID == 0 {
		c.MinID, c.MaxID = 1, 8
	}
	if c.RangeMin == c.RangeMax {
		// 180° centered on 2048 for a 4096 count turn
		c.RangeMin, c.RangeMax = 1024, 3072
	}
	if c.Timeout == 0 {
		c.Timeout = 100 * time.Millisecond
	}
}

// FeetechBus drives smart serial servos as if they were PWM channels: the
// channel is the servo ID and pulses are rescaled to goal positions. The
// present position doubles as analog feedback, read with the servo ID as
// pin.
type FeetechBus struct {
	cfg    FeetechConfig
	bus    *feetech.Bus
	group  *feetech.ServoGroup
	servos map[int]*feetech.Servo
	torque map[int]bool
}

// OpenFeetech opens the bus and scans it for servos.
func OpenFeetech(cfg FeetechConfig) (*FeetechBus, error) {
	cfg.defaults()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, wrap("feetech", fmt.Errorf("open bus: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	found, err := bus.Scan(ctx, cfg.MinID, cfg.MaxID)
	if err != nil {
		bus.Close()
		return nil, wrap("feetech", fmt.Errorf("scan: %w", err))
	}

	f := &FeetechBus{
		cfg:    cfg,
		bus:    bus,
		servos: make(map[int]*feetech.Servo, len(found)),
		torque: make(map[int]bool, len(found)),
	}
	ids := make([]int, 0, len(found))
	for _, s := range found {
		f.servos[s.ID] = feetech.NewServo(bus, s.ID, s.Model)
		ids = append(ids, s.ID)
	}
	f.group = feetech.NewServoGroupByIDs(bus, ids...)
	return f, nil
}

// IDs returns the servo IDs found on the bus.
func (f *FeetechBus) IDs() []int {
	ids := make([]int, 0, len(f.servos))
	for id := range f.servos {
		ids = append(ids, id)
	}
	return ids
}

func (f *FeetechBus) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), f.cfg.Timeout)
}

// SetPulse implements servo.PWM. A pulse of 0 disables torque.
func (f *FeetechBus) SetPulse(channel, pulse int) error {
	s, ok := f.servos[channel]
	if !ok {
		return wrap("feetech", fmt.Errorf("%w: id %d", ErrNoChannel, channel))
	}
	ctx, cancel := f.ctx()
	defer cancel()

	if pulse == 0 {
		f.torque[channel] = false
		return wrap("feetech", s.Disable(ctx))
	}
	if !f.torque[channel] {
		if err := s.Enable(ctx); err != nil {
			return wrap("feetech", err)
		}
		f.torque[channel] = true
	}
	pos := PulseToPosition(pulse, f.cfg.RangeMin, f.cfg.RangeMax)
	return wrap("feetech", f.group.SetPositions(ctx, feetech.PositionMap{channel: pos}))
}

// ReadRaw implements servo.AnalogReader with the present position.
func (f *FeetechBus) ReadRaw(pin int) (int, error) {
	s, ok := f.servos[pin]
	if !ok {
		return 0, wrap("feetech", fmt.Errorf("%w: id %d", ErrNoChannel, pin))
	}
	ctx, cancel := f.ctx()
	defer cancel()

	pos, err := s.Position(ctx)
	return pos, wrap("feetech", err)
}

// Close disables every servo and closes the bus.
func (f *FeetechBus) Close() error {
	ctx, cancel := f.ctx()
	defer cancel()
	return multierr.Combine(f.group.DisableAll(ctx), f.bus.Close())
}

// PulseToPosition rescales a PCA9685 style pulse onto a raw position span.
func PulseToPosition(pulse, rangeMin, rangeMax int) int {
	if pulse < servo.PulseMin {
		pulse = servo.PulseMin
	}
	if pulse > servo.PulseMax {
		pulse = servo.PulseMax
	}
	return rangeMin + (pulse-servo.PulseMin)*(rangeMax-rangeMin)/(servo.PulseMax-servo.PulseMin)
}
