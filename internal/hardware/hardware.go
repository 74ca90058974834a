// Package hardware drives the lamp outputs and watches the motion sensor.
package hardware

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"lightnode/internal/dimmer"
)

// ErrPinNotFound is returned when a configured pin name is not registered.
var ErrPinNotFound = errors.New("gpio pin not found")

// DefaultPWMFrequency matches the hardware PWM period of 3333 counts.
const DefaultPWMFrequency = 300 * physic.Hertz

type outputPin interface {
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, f physic.Frequency) error
}

type edgePin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
}

// GPIOConfig names the pins used by the GPIO actuator.
type GPIOConfig struct {
	PWMPin       string
	RelayPin     string
	MotionPin    string
	PWMFrequency physic.Frequency
}

// Init loads the host drivers. It must run before any pin lookup.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	return nil
}

func lookup(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrPinNotFound)
	}
	return p, nil
}

// GPIO drives the relay and dimming PWM pins.
type GPIO struct {
	mu     sync.Mutex
	pwm    outputPin
	relay  outputPin
	freq   physic.Frequency
	logger *slog.Logger
}

// OpenGPIO resolves the output pins. Init must have been called.
func OpenGPIO(cfg GPIOConfig, logger *slog.Logger) (*GPIO, error) {
	pwm, err := lookup(cfg.PWMPin)
	if err != nil {
		return nil, err
	}
	relay, err := lookup(cfg.RelayPin)
	if err != nil {
		return nil, err
	}
	return newGPIO(pwm, relay, cfg.PWMFrequency, logger), nil
}

func newGPIO(pwm, relay outputPin, freq physic.Frequency, logger *slog.Logger) *GPIO {
	if freq == 0 {
		freq = DefaultPWMFrequency
	}
	return &GPIO{pwm: pwm, relay: relay, freq: freq, logger: logger.With("component", "gpio")}
}

// PWMDuty scales duty units onto the periph duty range.
func PWMDuty(duty uint16) gpio.Duty {
	if duty > dimmer.MaxDuty {
		duty = dimmer.MaxDuty
	}
	return gpio.Duty(uint64(duty) * uint64(gpio.DutyMax) / uint64(dimmer.MaxDuty))
}

// SetDuty implements dimmer.Actuator.
func (g *GPIO) SetDuty(duty uint16) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.pwm.PWM(PWMDuty(duty), g.freq); err != nil {
		return fmt.Errorf("pwm duty %d: %w", duty, err)
	}
	return nil
}

// SetLoad implements dimmer.Actuator.
func (g *GPIO) SetLoad(on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.relay.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	g.logger.Debug("relay switched", "on", on)
	return nil
}

// Sim is an actuator without hardware. It logs every change and keeps
// the last values for inspection.
type Sim struct {
	mu     sync.Mutex
	duty   uint16
	loadOn bool
	logger *slog.Logger
}

// NewSim creates a simulated actuator.
func NewSim(logger *slog.Logger) *Sim {
	return &Sim{duty: dimmer.OffDuty, logger: logger.With("component", "sim")}
}

func (s *Sim) SetDuty(duty uint16) error {
	s.mu.Lock()
	s.duty = duty
	s.mu.Unlock()
	s.logger.Debug("duty", "value", duty)
	return nil
}

func (s *Sim) SetLoad(on bool) error {
	s.mu.Lock()
	s.loadOn = on
	s.mu.Unlock()
	s.logger.Info("load", "on", on)
	return nil
}

// State returns the last duty and load values.
func (s *Sim) State() (duty uint16, loadOn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duty, s.loadOn
}
