// Package transport carries raw bytes between the node and its host
// controller over a serial line or a TCP bridge.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

var (
	// ErrWriteTimeout is returned when the link did not accept a write
	// before the context expired.
	ErrWriteTimeout = errors.New("transport write timed out")
	// ErrClosed is returned for writes after Close.
	ErrClosed = errors.New("transport closed")
)

// Transport is a byte link to the host controller.
type Transport interface {
	Write(ctx context.Context, p []byte) error
	OnReceive(handler func([]byte))
	Close() error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Stream implements Transport over any ReadWriteCloser. A single read
// goroutine delivers chunks to the receive handler in arrival order.
type Stream struct {
	name   string
	rwc    io.ReadWriteCloser
	logger *slog.Logger

	// sem serializes writes; it is a channel so acquiring can be abandoned.
	sem chan struct{}

	handlerMu sync.RWMutex
	onReceive func([]byte)

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStream wraps rwc and starts reading.
func NewStream(name string, rwc io.ReadWriteCloser, logger *slog.Logger) *Stream {
	s := &Stream{
		name:   name,
		rwc:    rwc,
		logger: logger.With("component", "transport", "link", name),
		sem:    make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s
}

// OnReceive registers the handler for incoming bytes. The slice is only
// valid for the duration of the call.
func (s *Stream) OnReceive(handler func([]byte)) {
	s.handlerMu.Lock()
	s.onReceive = handler
	s.handlerMu.Unlock()
}

// Write sends p, giving up when ctx expires.
func (s *Stream) Write(ctx context.Context, p []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", s.name, ErrWriteTimeout)
	case <-s.done:
		return ErrClosed
	}

	if d, ok := s.rwc.(writeDeadliner); ok {
		defer func() { <-s.sem }()
		deadline, hasDeadline := ctx.Deadline()
		if !hasDeadline {
			deadline = time.Time{}
		}
		_ = d.SetWriteDeadline(deadline)
		if _, err := s.rwc.Write(p); err != nil {
			return s.writeErr(err)
		}
		return nil
	}

	// Serial ports have no write deadline; the write finishes in the
	// background and releases the lock when it does.
	errCh := make(chan error, 1)
	go func() {
		_, err := s.rwc.Write(p)
		<-s.sem
		errCh <- err
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return s.writeErr(err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", s.name, ErrWriteTimeout)
	case <-s.done:
		return ErrClosed
	}
}

func (s *Stream) writeErr(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%s: %w", s.name, ErrWriteTimeout)
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return ErrClosed
	default:
		return fmt.Errorf("%s write: %w", s.name, err)
	}
}

func (s *Stream) readLoop() {
	defer s.wg.Done()

	backoff := 10 * time.Millisecond
	const maxBackoff = 5 * time.Second
	buf := make([]byte, 64)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.rwc.Read(buf)
		if n > 0 {
			backoff = 10 * time.Millisecond
			s.handlerMu.RLock()
			h := s.onReceive
			s.handlerMu.RUnlock()
			if h != nil {
				h(buf[:n])
			}
		}
		if err == nil {
			continue
		}

		select {
		case <-s.done:
			return
		default:
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			s.logger.Warn("link closed by peer")
			return
		}
		s.logger.Error("read error", "err", err)
		select {
		case <-time.After(backoff):
		case <-s.done:
			return
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// Close stops the read loop and closes the underlying link.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.rwc.Close()
	})
	s.wg.Wait()
	return err
}
