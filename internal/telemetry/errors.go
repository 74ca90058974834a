package telemetry

import "errors"

var (
	// ErrDisabled indicates telemetry is disabled in configuration.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("telemetry: connection failed")

	// ErrNotConnected indicates the client was closed.
	ErrNotConnected = errors.New("telemetry: not connected")
)
