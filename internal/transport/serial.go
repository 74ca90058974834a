package transport

import (
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

// OpenSerial opens a serial port at 8N1 and starts reading from it.
func OpenSerial(portName string, baudRate int, logger *slog.Logger) (*Stream, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}
	// USB CDC adapters only forward data once DTR/RTS are asserted.
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)
	if err := port.SetReadTimeout(500 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", portName, err)
	}
	return NewStream(portName, port, logger), nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
