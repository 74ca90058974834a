//go:build no_telemetry

package main

import (
	"log/slog"

	"lightnode/internal/node"
)

type teleStopper struct{}

func (t *teleStopper) Stop() {}

func initTelemetry(_ *node.Node, _ *Config, _ *slog.Logger) *teleStopper {
	return &teleStopper{}
}
