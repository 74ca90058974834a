package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
)

// DialTCP connects to a serial-over-TCP bridge.
func DialTCP(ctx context.Context, address string, logger *slog.Logger) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewStream(address, conn, logger), nil
}
