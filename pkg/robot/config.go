package robot

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"github.com/gwillem/cobot/pkg/servo"
)

const DefaultConfigFile = "cobot.yaml"

// Bus drivers.
const (
	DriverPCA9685 = "pca9685"
	DriverFeetech = "feetech"
	DriverSim     = "sim"
)

// Feedback drivers. DriverBus reads feedback from the bus driver itself.
const (
	DriverADS1115 = "ads1115"
	DriverBus     = "bus"
)

// Config holds the arm configuration
type Config struct {
	Bus    BusConfig     `yaml:"bus"`
	ADC    ADCConfig     `yaml:"adc"`
	Notify NotifyConfig  `yaml:"notify"`
	Store  string        `yaml:"store" env:"COBOT_STORE"`
	Hz     int           `yaml:"hz" env:"COBOT_HZ"`
	Joints []JointConfig `yaml:"joints"`
}

// BusConfig selects the PWM backend
type BusConfig struct {
	Driver    string `yaml:"driver" env:"COBOT_BUS"`
	I2C       string `yaml:"i2c" env:"COBOT_I2C"`
	Addr      uint16 `yaml:"addr"`
	Frequency int    `yaml:"frequency"` // Hz
	Port      string `yaml:"port" env:"COBOT_PORT"`
	Baud      int    `yaml:"baud"`
}

// ADCConfig selects the feedback backend. Channels maps feedback pins to
// converter inputs.
type ADCConfig struct {
	Driver   string      `yaml:"driver"`
	I2C      string      `yaml:"i2c"`
	Addr     uint16      `yaml:"addr"`
	Channels map[int]int `yaml:"channels,omitempty"`
}

// NotifyConfig is the serial port joint angles are reported on
type NotifyConfig struct {
	Port string `yaml:"port" env:"COBOT_NOTIFY_PORT"`
	Baud int    `yaml:"baud"`
}

// JointConfig holds the wiring and limits of one channel. Feedback is -1
// when the joint has no pot, which is also what an omitted feedback key
// means.
type JointConfig struct {
	Name     JointName `yaml:"name"`
	Joint    int       `yaml:"joint"`
	Channel  int       `yaml:"channel"`
	Feedback int       `yaml:"feedback"`
	Min      int       `yaml:"min"`
	Max      int       `yaml:"max"`
	Initial  int       `yaml:"initial"`
	PotMin   int       `yaml:"pot_min,omitempty"`
	PotMax   int       `yaml:"pot_max,omitempty"`
	MirrorOf JointName `yaml:"mirror_of,omitempty"`
}

// UnmarshalYAML defaults Feedback to servo.NoPin.
func (j *JointConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain JointConfig
	p := plain{Feedback: servo.NoPin}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*j = JointConfig(p)
	return nil
}

var (
	ErrNoJoints       = errors.New("no joints configured")
	ErrDuplicateJoint = errors.New("duplicate joint")
	ErrUnknownMaster  = errors.New("mirror of unknown joint")
)

// DefaultConfig returns the wiring of the reference arm: eight PCA9685
// channels, pots on ESP32 style pins and the second shoulder servo mirroring
// the first.
func DefaultConfig() *Config {
	pins := []int{32, 33, -1, 35, 34, -1, 36, 39}
	initial := []int{90, 30, 150, 152, 90, 84, 90, 90}
	joints := []int{1, 2, 2, 3, 4, 5, 6, 7}

	cfg := &Config{
		Bus: BusConfig{
			Driver:    DriverPCA9685,
			Addr:      0x40,
			Frequency: 50,
			Baud:      1_000_000,
		},
		ADC: ADCConfig{
			Driver: DriverADS1115,
			Addr:   0x48,
			Channels: map[int]int{
				32: 0,
				33: 1,
				35: 2,
				34: 3,
			},
		},
		Notify: NotifyConfig{Baud: 115200},
		Store:  "cobot.db",
		Hz:     200,
	}
	for i, name := range AllJoints() {
		jc := JointConfig{
			Name:     name,
			Joint:    joints[i],
			Channel:  i,
			Feedback: pins[i],
			Min:      0,
			Max:      180,
			Initial:  initial[i],
		}
		if name == ShoulderMirror {
			jc.MirrorOf = Shoulder
		}
		cfg.Joints = append(cfg.Joints, jc)
	}
	return cfg
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file and applies
// environment overrides. A missing file yields DefaultConfig.
func LoadConfigFrom(path string) (*Config, error) {
	return loadConfig(path, env.Options{})
}

func loadConfig(path string, opts env.Options) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		// joints in the file replace the defaults instead of merging
		cfg.Joints = nil
		cfg.ADC.Channels = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks joint names and mirror references.
func (c *Config) Validate() error {
	if len(c.Joints) == 0 {
		return ErrNoJoints
	}
	seen := make(map[JointName]bool, len(c.Joints))
	for _, j := range c.Joints {
		if seen[j.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateJoint, j.Name)
		}
		seen[j.Name] = true
	}
	for _, j := range c.Joints {
		if j.MirrorOf != "" && !seen[j.MirrorOf] {
			return fmt.Errorf("%w: %s mirrors %s", ErrUnknownMaster, j.Name, j.MirrorOf)
		}
	}
	return nil
}

// Joint returns the configuration of the named joint.
func (c *Config) Joint(name JointName) (JointConfig, bool) {
	for _, j := range c.Joints {
		if j.Name == name {
			return j, true
		}
	}
	return JointConfig{}, false
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
