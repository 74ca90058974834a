package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"lightnode/internal/transport"
)

var errNoLink = errors.New("one of --port or --tcp is required")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// openLink opens the serial or TCP link selected by the root flags.
func openLink(ctx context.Context) (*transport.Stream, string, error) {
	switch {
	case portName != "" && tcpAddr != "":
		return nil, "", fmt.Errorf("--port and --tcp are mutually exclusive")
	case portName != "":
		s, err := transport.OpenSerial(portName, baudRate, quietLogger())
		return s, fmt.Sprintf("serial %s @ %d baud", portName, baudRate), err
	case tcpAddr != "":
		s, err := transport.DialTCP(ctx, tcpAddr, quietLogger())
		return s, "tcp " + tcpAddr, err
	default:
		return nil, "", errNoLink
	}
}

var lineEnd = []byte{'\n', '\r'}

// lineSplitter accumulates link bytes and cuts them into lines ending in
// "\n\r". Bytes before the first 'D' of a line are noise and dropped.
type lineSplitter struct {
	mu    sync.Mutex
	buf   []byte
	lines chan []byte
}

func newLineSplitter() *lineSplitter {
	return &lineSplitter{lines: make(chan []byte, 16)}
}

func (l *lineSplitter) feed(p []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		if start := bytes.IndexByte(l.buf, 'D'); start > 0 {
			l.buf = l.buf[start:]
		} else if start < 0 {
			l.buf = l.buf[:0]
			return
		}
		end := bytes.Index(l.buf, lineEnd)
		if end < 0 {
			return
		}
		line := append([]byte(nil), l.buf[:end+len(lineEnd)]...)
		l.buf = l.buf[end+len(lineEnd):]
		select {
		case l.lines <- line:
		default:
		}
	}
}
