package main

import (
	"fmt"

	"go.uber.org/zap"

	"tiltgame/internal/config"
	"tiltgame/internal/game"
	"tiltgame/internal/geom"
	"tiltgame/internal/indicator"
	"tiltgame/internal/motion"
	"tiltgame/internal/sensor"
)

var (
	openIMU       = func(cfg sensor.IMUConfig) (sensor.Source, error) { return sensor.NewIMU(cfg) }
	openIndicator = indicator.Open
)

func gameConfig(c config.GameConfig) game.Config {
	var eps float64
	if c.DeadbandEpsilon != nil {
		eps = *c.DeadbandEpsilon
	}
	return game.Config{
		Orientation: motion.OrientationConfig{TiltThresholdDeg: c.TiltThresholdDeg},
		Integrator: motion.IntegratorConfig{
			AccelGain:       c.AccelGain,
			DeadbandEpsilon: eps,
			TargetRadius:    c.TargetRadius,
			DotDiameter:     c.DotDiameter,
		},
		Playfield:        geom.Size{Width: c.Playfield.Width, Height: c.Playfield.Height},
		AdvisoryCooldown: c.AdvisoryCooldown,
	}
}

// openSource builds the configured sensor source, wrapped in a recorder when
// recording is enabled. info is shown on /api/status.
func openSource(c config.SensorConfig) (src sensor.Source, info map[string]any, err error) {
	switch c.Source {
	case config.SourceSim:
		sim := sensor.NewSim(sensor.SimConfig{
			Interval:          c.Interval,
			Period:            c.Sim.Period,
			AmplitudeG:        c.Sim.AmplitudeG,
			PitchAmplitudeDeg: c.Sim.PitchAmplitudeDeg,
			FailEvery:         c.Sim.FailEvery,
		})
		src, info = sim, sim.Info()
	case config.SourceIMU:
		bus := 1
		if c.IMU.I2CBus != nil {
			bus = *c.IMU.I2CBus
		}
		src, err = openIMU(sensor.IMUConfig{I2CBus: bus, Addr: c.IMU.Addr, Interval: c.Interval})
		if err != nil {
			return nil, nil, err
		}
		info = map[string]any{"i2c_bus": bus, "addr": fmt.Sprintf("0x%02X", c.IMU.Addr)}
		if d, ok := src.(interface{ Info() map[string]any }); ok {
			for k, v := range d.Info() {
				info[k] = v
			}
		}
	case config.SourceReplay:
		rp, err := sensor.OpenReplay(c.Replay.Path, sensor.ReplayConfig{Speed: c.Replay.Speed, Loop: c.Replay.Loop})
		if err != nil {
			return nil, nil, err
		}
		src = rp
		info = map[string]any{"path": c.Replay.Path, "records": rp.Len(), "speed": c.Replay.Speed, "loop": c.Replay.Loop}
	default:
		return nil, nil, fmt.Errorf("unknown sensor source %q", c.Source)
	}

	if c.Record.Enable {
		rec, err := sensor.CreateRecorder(src, c.Record.Path)
		if err != nil {
			_ = src.Close()
			return nil, nil, err
		}
		src = rec
		info["record_path"] = c.Record.Path
	}
	return src, info, nil
}

// openLED falls back to a no-op indicator so a missing LED never stops the
// game.
func openLED(c config.IndicatorConfig, log *zap.Logger) indicator.Indicator {
	if !c.Enable {
		return indicator.Nop{}
	}
	led, err := openIndicator(c.GPIOPin)
	if err != nil {
		log.Warn("indicator unavailable", zap.Int("gpio_pin", c.GPIOPin), zap.Error(err))
		return indicator.Nop{}
	}
	log.Info("indicator enabled", zap.Int("gpio_pin", c.GPIOPin))
	return led
}
