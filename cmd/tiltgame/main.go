package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tiltgame/internal/config"
	"tiltgame/internal/game"
	"tiltgame/internal/logging"
	"tiltgame/internal/udp"
	"tiltgame/internal/web"
)

func main() {
	var configPath string
	var summarizePath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config (defaults are used when empty)")
	flag.StringVar(&summarizePath, "summarize", "", "Print a summary of a replay log and exit")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if strings.TrimSpace(summarizePath) != "" {
		if err := printReplaySummary(os.Stdout, summarizePath, cfg.Game.TiltThresholdDeg); err != nil {
			log.Fatalf("summarize failed: %v", err)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("tiltgame: %v", err)
	}
}

func loadConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// run wires the sensor source, game loop, indicator and web server, and
// blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg config.Config) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	logger := logging.New(level, logs)
	defer func() { _ = logger.Sync() }()

	src, info, err := openSource(cfg.Sensor)
	if err != nil {
		return fmt.Errorf("sensor source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("sensor source close failed", zap.Error(err))
		}
	}()

	led := openLED(cfg.Indicator, logger)
	defer func() {
		_ = led.Set(false)
		_ = led.Close()
	}()

	events := web.NewEventBroadcaster()
	pubs := game.Publishers{events}
	if cfg.UDP.Enable {
		tel, err := udp.NewBroadcaster(cfg.UDP.Dest, cfg.UDP.Every, logger)
		if err != nil {
			return fmt.Errorf("udp telemetry: %w", err)
		}
		defer tel.Close()
		pubs = append(pubs, tel)
		logger.Info("udp telemetry enabled", zap.String("dest", cfg.UDP.Dest), zap.Int("every", cfg.UDP.Every))
	}
	runner, err := game.New(gameConfig(cfg.Game), src, game.Outputs{
		Frames:     pubs,
		Advisories: pubs,
		Indicator:  led,
	}, logger)
	if err != nil {
		return err
	}

	status := web.NewStatus()
	status.SetStatic(cfg.Sensor.Source, cfg.Sensor.Interval.String(), info)

	logger.Info("tiltgame starting",
		zap.String("session", runner.Session()),
		zap.String("source", cfg.Sensor.Source),
		zap.Duration("interval", cfg.Sensor.Interval),
		zap.String("listen", cfg.Web.Listen),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := runner.Run(gctx); err != nil {
			return fmt.Errorf("game loop: %w", err)
		}
		// A finite replay has ended; keep serving the final frame.
		return nil
	})
	g.Go(func() error {
		return web.Serve(gctx, cfg.Web.Listen, web.Deps{
			Status: status,
			Events: events,
			Game:   runner,
			Logs:   logs,
			Log:    logger,
		})
	})

	err = g.Wait()
	logger.Info("tiltgame stopping")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
