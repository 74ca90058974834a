package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lightnode/internal/telemetry"
)

type Config struct {
	Transport struct {
		Type         string `yaml:"type"` // "serial" or "tcp"
		Port         string `yaml:"port"`
		Baud         int    `yaml:"baud"`
		Address      string `yaml:"address"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"transport"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Node struct {
		Name            string `yaml:"name"`
		IdentityTimeout string `yaml:"identity_timeout"`
		IdleGap         string `yaml:"idle_gap"`
		FadeUnit        string `yaml:"fade_unit"`
		OccupancyTick   string `yaml:"occupancy_tick"`
		SampleUnit      string `yaml:"sample_unit"`
		Debounce        uint8  `yaml:"debounce"`
	} `yaml:"node"`
	Hardware struct {
		Type         string `yaml:"type"` // "sim" or "gpio"
		PWMPin       string `yaml:"pwm_pin"`
		RelayPin     string `yaml:"relay_pin"`
		MotionPin    string `yaml:"motion_pin"`
		PWMFrequency int64  `yaml:"pwm_frequency"` // Hz
	} `yaml:"hardware"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
		ClientID    string `yaml:"client_id"`
	} `yaml:"mqtt"`
	InfluxDB telemetry.Config `yaml:"influxdb"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	ScriptsDir string `yaml:"scripts_dir"`
}

// durations lists the duration settings by their YAML key.
func (c *Config) durations() map[string]string {
	return map[string]string{
		"transport.write_timeout": c.Transport.WriteTimeout,
		"node.identity_timeout":   c.Node.IdentityTimeout,
		"node.idle_gap":           c.Node.IdleGap,
		"node.fade_unit":          c.Node.FadeUnit,
		"node.occupancy_tick":     c.Node.OccupancyTick,
		"node.sample_unit":        c.Node.SampleUnit,
	}
}

func (c *Config) validate() error {
	switch c.Transport.Type {
	case "serial":
		if c.Transport.Port == "" {
			return fmt.Errorf("transport.port is required for serial transport")
		}
		if c.Transport.Baud <= 0 {
			return fmt.Errorf("transport.baud must be positive, got %d", c.Transport.Baud)
		}
	case "tcp":
		if c.Transport.Address == "" {
			return fmt.Errorf("transport.address is required for tcp transport")
		}
	default:
		return fmt.Errorf("unknown transport type: %q (supported: serial, tcp)", c.Transport.Type)
	}

	switch c.Hardware.Type {
	case "sim":
	case "gpio":
		if c.Hardware.PWMPin == "" || c.Hardware.RelayPin == "" {
			return fmt.Errorf("hardware.pwm_pin and hardware.relay_pin are required for gpio hardware")
		}
	default:
		return fmt.Errorf("unknown hardware type: %q (supported: sim, gpio)", c.Hardware.Type)
	}

	for key, v := range c.durations() {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, v)
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		return fmt.Errorf("influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = "serial"
	}
	if cfg.Transport.Baud == 0 {
		cfg.Transport.Baud = 115200
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "lightnode.db"
	}
	if cfg.Node.Name == "" {
		cfg.Node.Name = "lightnode"
	}
	if cfg.Hardware.Type == "" {
		cfg.Hardware.Type = "sim"
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "lightnode"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

// duration parses a validated duration; empty means zero so the node
// applies its own default.
func duration(v string) time.Duration {
	if v == "" {
		return 0
	}
	d, _ := time.ParseDuration(v)
	return d
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
