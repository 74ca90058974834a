//go:build !no_telemetry

package main

import (
	"errors"
	"log/slog"

	"lightnode/internal/node"
	"lightnode/internal/telemetry"
)

type teleStopper struct {
	recorder *telemetry.Recorder
	client   *telemetry.Client
}

// Stop writes queued events, then flushes and closes the client.
func (t *teleStopper) Stop() {
	if t.recorder != nil {
		t.recorder.Stop()
	}
	if t.client != nil {
		t.client.Close()
	}
}

func initTelemetry(n *node.Node, cfg *Config, logger *slog.Logger) *teleStopper {
	client, err := telemetry.Connect(cfg.InfluxDB)
	if err != nil {
		if !errors.Is(err, telemetry.ErrDisabled) {
			logger.Error("influxdb connect", "err", err)
		}
		return &teleStopper{}
	}
	client.SetOnError(func(err error) {
		logger.Warn("influxdb write", "err", err)
	})

	rec := telemetry.NewRecorder(n.Name(), client, logger)
	rec.Start(n.Events())
	logger.Info("telemetry enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	return &teleStopper{recorder: rec, client: client}
}
