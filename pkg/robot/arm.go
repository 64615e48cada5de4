package robot

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"

	"github.com/gwillem/cobot/pkg/hw"
	"github.com/gwillem/cobot/pkg/notify"
	"github.com/gwillem/cobot/pkg/servo"
)

// Backends are the outputs and inputs an arm is built on. Feedback and
// Notifier may be nil.
type Backends struct {
	PWM      servo.PWM
	Feedback servo.AnalogReader
	Notifier servo.Notifier
	Closers  []io.Closer
}

// Arm represents a robot arm with one actuator per configured channel.
type Arm struct {
	group   *servo.Group
	names   []JointName
	index   map[JointName]int
	closers []io.Closer
	logger  *zap.Logger
}

// NewArm creates the actuators of cfg on already opened backends and links
// the mirrors. The arm takes ownership of b.Closers.
func NewArm(cfg *Config, b Backends, logger *zap.Logger) (*Arm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	arm := &Arm{
		index:   make(map[JointName]int, len(cfg.Joints)),
		closers: b.Closers,
		logger:  logger,
	}

	actuators := make([]*servo.Actuator, len(cfg.Joints))
	for i, jc := range cfg.Joints {
		opts := []servo.Option{servo.WithLogger(logger.Named(string(jc.Name)))}
		if b.Notifier != nil {
			opts = append(opts, servo.WithNotifier(b.Notifier))
		}
		pin := jc.Feedback
		if b.Feedback == nil {
			pin = servo.NoPin
		} else {
			opts = append(opts, servo.WithAnalogReader(b.Feedback))
		}

		actuators[i] = servo.New(b.PWM, servo.Config{
			Channel:     jc.Channel,
			Joint:       jc.Joint,
			FeedbackPin: pin,
			Min:         jc.Min,
			Max:         jc.Max,
			Initial:     jc.Initial,
			PotMin:      jc.PotMin,
			PotMax:      jc.PotMax,
		}, opts...)
		arm.names = append(arm.names, jc.Name)
		arm.index[jc.Name] = i
	}

	arm.group = servo.NewGroup(actuators...)
	for i, jc := range cfg.Joints {
		if jc.MirrorOf == "" {
			continue
		}
		if err := arm.group.Link(arm.index[jc.MirrorOf], i); err != nil {
			return nil, fmt.Errorf("link %s to %s: %w", jc.Name, jc.MirrorOf, err)
		}
	}
	return arm, nil
}

// OpenArm opens the backends named in cfg and builds the arm on them.
func OpenArm(cfg *Config, logger *zap.Logger) (*Arm, error) {
	b, err := OpenBackends(cfg, logger)
	if err != nil {
		return nil, err
	}
	arm, err := NewArm(cfg, b, logger)
	if err != nil {
		return nil, multierr.Append(err, closeAll(b.Closers))
	}
	return arm, nil
}

// OpenBackends opens the PWM, feedback and notification backends of cfg.
func OpenBackends(cfg *Config, logger *zap.Logger) (b Backends, err error) {
	defer func() {
		if err != nil {
			err = multierr.Append(err, closeAll(b.Closers))
		}
	}()

	var feetech *hw.FeetechBus
	switch cfg.Bus.Driver {
	case DriverPCA9685, "":
		freq := physic.Frequency(cfg.Bus.Frequency) * physic.Hertz
		if freq == 0 {
			freq = hw.ServoFrequency
		}
		pca, err := hw.OpenPCA9685(cfg.Bus.I2C, cfg.Bus.Addr, freq)
		if err != nil {
			return b, err
		}
		b.PWM = pca
		b.Closers = append(b.Closers, closerFunc(func() error {
			return multierr.Combine(pca.Halt(), pca.Close())
		}))
	case DriverFeetech:
		feetech, err = hw.OpenFeetech(hw.FeetechConfig{
			Port:     cfg.Bus.Port,
			BaudRate: cfg.Bus.Baud,
		})
		if err != nil {
			return b, err
		}
		b.PWM = feetech
		b.Closers = append(b.Closers, feetech)
	case DriverSim:
		pins := make(map[int]int, len(cfg.Joints))
		for _, jc := range cfg.Joints {
			if jc.Feedback != servo.NoPin {
				pins[jc.Feedback] = jc.Channel
			}
		}
		sim := hw.NewSim(pins)
		b.PWM, b.Feedback = sim, sim
	default:
		return b, fmt.Errorf("unknown bus driver %q", cfg.Bus.Driver)
	}

	switch cfg.ADC.Driver {
	case "":
	case DriverADS1115:
		adc, err := hw.OpenADS1115(cfg.ADC.I2C, cfg.ADC.Addr, cfg.ADC.Channels)
		if err != nil {
			return b, err
		}
		b.Feedback = adc
		b.Closers = append(b.Closers, adc)
	case DriverBus:
		if feetech == nil {
			return b, errors.New("bus feedback needs the feetech driver")
		}
		b.Feedback = feetech
	default:
		return b, fmt.Errorf("unknown feedback driver %q", cfg.ADC.Driver)
	}

	if cfg.Notify.Port != "" {
		line, err := notify.OpenSerial(cfg.Notify.Port, cfg.Notify.Baud, logger)
		if err != nil {
			return b, err
		}
		b.Notifier = line
		b.Closers = append(b.Closers, line)
	}
	return b, nil
}

// Group returns the actuators of the arm.
func (a *Arm) Group() *servo.Group {
	return a.group
}

// Names returns the joint names in channel order.
func (a *Arm) Names() []JointName {
	return append([]JointName(nil), a.names...)
}

// Index returns the group index of a joint.
func (a *Arm) Index(name JointName) (int, bool) {
	i, ok := a.index[name]
	return i, ok
}

// Name returns the joint name at group index i.
func (a *Arm) Name(i int) JointName {
	if i < 0 || i >= len(a.names) {
		return ""
	}
	return a.names[i]
}

// LoadCalibration applies every stored record to its joint and returns the
// number applied. Records of unknown joints are skipped.
func (a *Arm) LoadCalibration(s *Store) (int, error) {
	records, err := s.All()
	if err != nil {
		return 0, err
	}
	var n int
	var errs error
	for _, r := range records {
		i, ok := a.index[r.Joint]
		if !ok {
			a.logger.Warn("calibration of unknown joint", zap.String("joint", string(r.Joint)))
			continue
		}
		act, _ := a.group.Actuator(i)
		if err := r.Apply(act); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		n++
	}
	return n, errs
}

// SaveCalibration stores the table of a calibrated joint.
func (a *Arm) SaveCalibration(s *Store, name JointName) error {
	i, ok := a.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", servo.ErrUnknownJoint, name)
	}
	act, _ := a.group.Actuator(i)
	if !act.Calibrated() {
		return fmt.Errorf("%w: %s", ErrNotCalibrated, name)
	}
	r := NewCalibrationRecord(name, act)
	r.Updated = time.Now()
	return s.Save(r)
}

// Close releases every joint and closes the backends.
func (a *Arm) Close() error {
	a.group.DetachAll()
	return closeAll(a.closers)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeAll(closers []io.Closer) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i].Close())
	}
	return err
}
