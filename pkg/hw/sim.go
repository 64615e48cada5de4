package hw

import (
	"fmt"
	"sync"

	"github.com/gwillem/cobot/pkg/servo"
)

// SimFullScale is the raw reading of a simulated pot at servo.PulseMax.
const SimFullScale = 4095

// Sim is an in-memory PWM board whose feedback pins read a linear pot wired
// to a channel. Detached channels keep their last reading.
type Sim struct {
	mu     sync.Mutex
	pulses map[int]int
	raw    map[int]int
	pins   map[int]int // feedback pin -> channel
}

// NewSim returns a simulator with feedback pins mapped to channels.
func NewSim(pins map[int]int) *Sim {
	return &Sim{
		pulses: make(map[int]int),
		raw:    make(map[int]int),
		pins:   pins,
	}
}

// SetPulse implements servo.PWM.
func (s *Sim) SetPulse(channel, pulse int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pulses[channel] = pulse
	if pulse != 0 {
		s.raw[channel] = (pulse - servo.PulseMin) * SimFullScale / (servo.PulseMax - servo.PulseMin)
	}
	return nil
}

// Pulse returns the last pulse written to channel.
func (s *Sim) Pulse(channel int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulses[channel]
}

// ReadRaw implements servo.AnalogReader.
func (s *Sim) ReadRaw(pin int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.pins[pin]
	if !ok {
		return 0, wrap("sim", fmt.Errorf("%w: pin %d", ErrNoChannel, pin))
	}
	return s.raw[ch], nil
}
