package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tiltgame/internal/logging"
)

type Config struct {
	Game      GameConfig      `yaml:"game"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Web       WebConfig       `yaml:"web"`
	UDP       UDPConfig       `yaml:"udp"`
	Log       LogConfig       `yaml:"log"`
}

type GameConfig struct {
	TiltThresholdDeg int     `yaml:"tilt_threshold_deg"`
	AccelGain        float64 `yaml:"accel_gain"`
	// DeadbandEpsilon is a pointer so an explicit 0 (deadband off) is
	// distinguishable from an absent key.
	DeadbandEpsilon  *float64        `yaml:"deadband_epsilon"`
	TargetRadius     int             `yaml:"target_radius"`
	DotDiameter      float64         `yaml:"dot_diameter"`
	Playfield        PlayfieldConfig `yaml:"playfield"`
	AdvisoryCooldown time.Duration   `yaml:"advisory_cooldown"`
}

type PlayfieldConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

type SensorConfig struct {
	Source   string        `yaml:"source"`
	Interval time.Duration `yaml:"interval"`
	IMU      IMUConfig     `yaml:"imu"`
	Sim      SimConfig     `yaml:"sim"`
	Replay   ReplayConfig  `yaml:"replay"`
	Record   RecordConfig  `yaml:"record"`
}

type IMUConfig struct {
	// I2CBus is a pointer so bus 0 can be selected explicitly. Unset means 1.
	I2CBus *int   `yaml:"i2c_bus"`
	Addr   uint16 `yaml:"addr"`
}

type SimConfig struct {
	Period            time.Duration `yaml:"period"`
	AmplitudeG        float64       `yaml:"amplitude_g"`
	PitchAmplitudeDeg float64       `yaml:"pitch_amplitude_deg"`
	FailEvery         int           `yaml:"fail_every"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

// RecordConfig captures the live source into a replay log.
type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type IndicatorConfig struct {
	Enable  bool `yaml:"enable"`
	GPIOPin int  `yaml:"gpio_pin"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

// UDPConfig streams telemetry datagrams to an external listener.
type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
	// Every sends one frame datagram per Every ticks. Advisories are always sent.
	Every int `yaml:"every"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	BufferLines int    `yaml:"buffer_lines"`
}

const (
	SourceSim    = "sim"
	SourceIMU    = "imu"
	SourceReplay = "replay"
)

const (
	minSensorInterval = 10 * time.Millisecond
	maxSensorInterval = 50 * time.Millisecond
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	// The zero config always validates.
	_ = DefaultAndValidate(&cfg)
	return cfg
}

// DefaultAndValidate fills zero values with defaults and rejects values the
// game cannot run with.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	g := &cfg.Game
	if g.TiltThresholdDeg == 0 {
		g.TiltThresholdDeg = 10
	}
	if g.TiltThresholdDeg < 0 || g.TiltThresholdDeg >= 90 {
		return fmt.Errorf("game.tilt_threshold_deg must be within [1,89]")
	}
	if g.AccelGain == 0 {
		g.AccelGain = 10
	}
	if g.AccelGain < 0 {
		return fmt.Errorf("game.accel_gain must be > 0")
	}
	if g.DeadbandEpsilon == nil {
		eps := 1.0
		g.DeadbandEpsilon = &eps
	}
	if *g.DeadbandEpsilon < 0 {
		return fmt.Errorf("game.deadband_epsilon must be >= 0")
	}
	if g.TargetRadius == 0 {
		g.TargetRadius = 70
	}
	if g.TargetRadius < 0 {
		return fmt.Errorf("game.target_radius must be > 0")
	}
	if g.DotDiameter == 0 {
		g.DotDiameter = 50
	}
	if g.DotDiameter < 0 {
		return fmt.Errorf("game.dot_diameter must be > 0")
	}
	if g.Playfield.Width == 0 && g.Playfield.Height == 0 {
		g.Playfield = PlayfieldConfig{Width: 375, Height: 667}
	}
	if g.Playfield.Width < g.DotDiameter || g.Playfield.Height < g.DotDiameter {
		return fmt.Errorf("game.playfield must be at least dot_diameter (%v) on each side", g.DotDiameter)
	}
	if g.AdvisoryCooldown == 0 {
		g.AdvisoryCooldown = 1200 * time.Millisecond
	}

	s := &cfg.Sensor
	s.Source = strings.ToLower(strings.TrimSpace(s.Source))
	if s.Source == "" {
		s.Source = SourceSim
	}
	switch s.Source {
	case SourceSim, SourceIMU, SourceReplay:
	default:
		return fmt.Errorf("sensor.source must be one of sim, imu, replay")
	}
	if s.Interval == 0 {
		s.Interval = 20 * time.Millisecond
	}
	if s.Interval < minSensorInterval || s.Interval > maxSensorInterval {
		return fmt.Errorf("sensor.interval must be within [%s,%s]", minSensorInterval, maxSensorInterval)
	}
	if s.IMU.I2CBus == nil {
		bus := 1
		s.IMU.I2CBus = &bus
	}
	if *s.IMU.I2CBus < 0 {
		return fmt.Errorf("sensor.imu.i2c_bus must be >= 0")
	}
	if s.IMU.Addr == 0 {
		s.IMU.Addr = 0x68
	}
	if s.IMU.Addr > 0x7F {
		return fmt.Errorf("sensor.imu.addr must be a 7-bit address")
	}
	if s.Sim.Period <= 0 {
		s.Sim.Period = 8 * time.Second
	}
	if s.Sim.AmplitudeG == 0 {
		s.Sim.AmplitudeG = 0.3
	}
	if s.Sim.PitchAmplitudeDeg == 0 {
		s.Sim.PitchAmplitudeDeg = 14
	}
	if s.Sim.FailEvery < 0 {
		return fmt.Errorf("sensor.sim.fail_every must be >= 0")
	}
	if s.Replay.Speed == 0 {
		s.Replay.Speed = 1
	}
	if s.Replay.Speed < 0 {
		return fmt.Errorf("sensor.replay.speed must be > 0")
	}
	if s.Source == SourceReplay && strings.TrimSpace(s.Replay.Path) == "" {
		return fmt.Errorf("sensor.replay.path is required when sensor.source is replay")
	}
	if s.Record.Enable {
		if s.Source == SourceReplay {
			return fmt.Errorf("sensor.record cannot be used with sensor.source=replay")
		}
		if strings.TrimSpace(s.Record.Path) == "" {
			return fmt.Errorf("sensor.record.path is required when sensor.record.enable is true")
		}
	}

	if cfg.Indicator.GPIOPin == 0 {
		cfg.Indicator.GPIOPin = 17
	}
	if cfg.Indicator.GPIOPin < 0 {
		return fmt.Errorf("indicator.gpio_pin must be >= 0")
	}

	if strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.UDP.Every == 0 {
		cfg.UDP.Every = 1
	}
	if cfg.UDP.Every < 0 {
		return fmt.Errorf("udp.every must be >= 1")
	}
	if cfg.UDP.Enable && strings.TrimSpace(cfg.UDP.Dest) == "" {
		return fmt.Errorf("udp.dest is required when udp.enable is true")
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.BufferLines == 0 {
		cfg.Log.BufferLines = 2000
	}
	if cfg.Log.BufferLines < 0 {
		return fmt.Errorf("log.buffer_lines must be > 0")
	}
	return nil
}
