package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/physic"

	"lightnode/internal/dimmer"
	"lightnode/internal/hardware"
	"lightnode/internal/node"
	"lightnode/internal/store"
	"lightnode/internal/transport"
	"lightnode/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("lightnode starting", "version", version, "node", cfg.Node.Name)

	flash, err := store.NewBoltFlash(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	cfgStore := store.NewConfigStore(flash, logger)
	defer cfgStore.Close()
	if wear, err := flash.Wear(); err == nil {
		logger.Info("config block opened", "path", cfg.Store.Path, "erases", wear.Erases)
	}

	link, err := openTransport(cfg, logger)
	if err != nil {
		logger.Error("open transport", "err", err)
		os.Exit(1)
	}
	defer link.Close()

	act, err := openActuator(cfg, logger)
	if err != nil {
		logger.Error("open hardware", "err", err)
		os.Exit(1)
	}

	events := node.NewEventBus(logger)
	n := node.New(node.Config{
		Name:            cfg.Node.Name,
		IdleGap:         duration(cfg.Node.IdleGap),
		FadeUnit:        duration(cfg.Node.FadeUnit),
		OccupancyTick:   duration(cfg.Node.OccupancyTick),
		SampleUnit:      duration(cfg.Node.SampleUnit),
		IdentityTimeout: duration(cfg.Node.IdentityTimeout),
		WriteTimeout:    duration(cfg.Transport.WriteTimeout),
		Debounce:        cfg.Node.Debounce,
	}, cfgStore, link, act, events, logger)

	// Bytes that arrive before the loop runs wait in the mailbox.
	link.OnReceive(n.Receive)

	if err := n.Start(context.Background()); err != nil {
		logger.Error("start node", "err", err)
		os.Exit(1)
	}

	motion := startMotionSensor(cfg, n, logger)

	// Optional features; each is a no-op when compiled out by build tag.
	tele := initTelemetry(n, cfg, logger)
	auto, autoWebOpts := initAutomation(n, cfg, logger)

	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))
	webOpts = append(webOpts, autoWebOpts...)
	webServer := web.NewServer(n, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	mqtt := initMQTT(n, cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if motion != nil {
		motion.Stop()
	}
	auto.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	n.Stop()
	tele.Stop()

	logger.Info("goodbye")
}

func openTransport(cfg *Config, logger *slog.Logger) (*transport.Stream, error) {
	switch cfg.Transport.Type {
	case "serial":
		logger.Info("using serial link", "port", cfg.Transport.Port, "baud", cfg.Transport.Baud)
		return transport.OpenSerial(cfg.Transport.Port, cfg.Transport.Baud, logger)
	case "tcp":
		logger.Info("using tcp link", "address", cfg.Transport.Address)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return transport.DialTCP(ctx, cfg.Transport.Address, logger)
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Transport.Type)
	}
}

func openActuator(cfg *Config, logger *slog.Logger) (dimmer.Actuator, error) {
	switch cfg.Hardware.Type {
	case "sim":
		logger.Info("using simulated lamp")
		return hardware.NewSim(logger), nil
	case "gpio":
		if err := hardware.Init(); err != nil {
			return nil, err
		}
		return hardware.OpenGPIO(hardware.GPIOConfig{
			PWMPin:       cfg.Hardware.PWMPin,
			RelayPin:     cfg.Hardware.RelayPin,
			MotionPin:    cfg.Hardware.MotionPin,
			PWMFrequency: physic.Frequency(cfg.Hardware.PWMFrequency) * physic.Hertz,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown hardware type: %q", cfg.Hardware.Type)
	}
}

// startMotionSensor watches the motion pin on gpio hardware. A sensor that
// cannot be opened is logged and skipped; motion can still be injected
// over the API.
func startMotionSensor(cfg *Config, n *node.Node, logger *slog.Logger) *hardware.MotionSensor {
	if cfg.Hardware.Type != "gpio" || cfg.Hardware.MotionPin == "" {
		return nil
	}
	m, err := hardware.OpenMotionSensor(cfg.Hardware.MotionPin, n.InjectMotion, logger)
	if err != nil {
		logger.Error("open motion sensor", "pin", cfg.Hardware.MotionPin, "err", err)
		return nil
	}
	m.Start()
	return m
}
