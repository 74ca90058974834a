package hardware

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// edgePoll bounds each wait so Stop is noticed promptly.
const edgePoll = 500 * time.Millisecond

// MotionSensor reports rising edges on the motion input.
type MotionSensor struct {
	pin    edgePin
	notify func() error
	logger *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// OpenMotionSensor configures the named pin as a pulled-down rising-edge
// input. notify runs once per edge.
func OpenMotionSensor(name string, notify func() error, logger *slog.Logger) (*MotionSensor, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return newMotionSensor(p, notify, logger)
}

func newMotionSensor(p edgePin, notify func() error, logger *slog.Logger) (*MotionSensor, error) {
	if err := p.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("configure motion input: %w", err)
	}
	return &MotionSensor{
		pin:    p,
		notify: notify,
		logger: logger.With("component", "motion"),
		done:   make(chan struct{}),
	}, nil
}

// Start launches the edge watcher.
func (m *MotionSensor) Start() {
	m.wg.Add(1)
	go m.watch()
}

func (m *MotionSensor) watch() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		default:
		}
		if !m.pin.WaitForEdge(edgePoll) {
			continue
		}
		if err := m.notify(); err != nil {
			m.logger.Warn("motion edge not delivered", "err", err)
			return
		}
	}
}

// Stop ends the watcher.
func (m *MotionSensor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}
