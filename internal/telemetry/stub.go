//go:build no_telemetry

package telemetry

import (
	"log/slog"

	"lightnode/internal/node"
)

// Config holds the InfluxDB v2 connection settings.
type Config struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Client is a no-op stub when telemetry is compiled out.
type Client struct{}

// Connect always reports telemetry as disabled.
func Connect(_ Config) (*Client, error) { return nil, ErrDisabled }

// SetOnError is a no-op.
func (c *Client) SetOnError(_ func(err error)) {}

// Close is a no-op.
func (c *Client) Close() error { return nil }

// Recorder is a no-op stub.
type Recorder struct{}

// NewRecorder returns a no-op recorder.
func NewRecorder(_ string, _ *Client, _ *slog.Logger) *Recorder { return &Recorder{} }

// Start is a no-op.
func (r *Recorder) Start(_ *node.EventBus) {}

// Stop is a no-op.
func (r *Recorder) Stop() {}
