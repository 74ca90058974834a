// Package dimmer maps percentages onto the inverted PWM duty scale and
// ramps the duty one fade step at a time.
package dimmer

import (
	"log/slog"
)

// Duty scale. Lower duty is brighter.
const (
	MaxDuty  uint16 = 3333
	OffDuty  uint16 = 3300
	FullDuty uint16 = 0

	MaxLevel uint8 = 99
)

// Actuator drives the physical load.
type Actuator interface {
	SetDuty(duty uint16) error
	SetLoad(on bool) error
}

// DutyFor maps a 0-99 percentage to duty units. It reports false for
// percentages above 99, which leave the target untouched.
func DutyFor(p uint8) (uint16, bool) {
	d := uint16(p)
	switch {
	case p <= 10:
		return OffDuty - 24*d, true
	case p == 11:
		return 3085, true
	case p == 12:
		return 3084, true
	case p == 13:
		return 3080, true
	case p == 14:
		return 3075, true
	case p <= 66:
		return 3070 - 24*(d-15), true
	case p <= 98:
		return 1780 - 24*(d-67), true
	case p == MaxLevel:
		return FullDuty, true
	default:
		return 0, false
	}
}

// IsOff reports whether duty leaves the lamp dark.
func IsOff(duty uint16) bool {
	return duty >= OffDuty
}

// Engine owns the duty state. It is driven from a single goroutine.
type Engine struct {
	act    Actuator
	logger *slog.Logger

	current uint16
	target  uint16
	rate    uint16
	off     bool
	ramping bool
	loadOn  bool
}

// New returns an engine at full brightness with a fade rate of 1.
func New(act Actuator, logger *slog.Logger) *Engine {
	return &Engine{
		act:    act,
		logger: logger.With("component", "dimmer"),
		rate:   1,
	}
}

// SetLevel computes the target duty for p. It returns true when a ramp
// has to be started; a ramp already in progress simply steers towards
// the new target.
func (e *Engine) SetLevel(p uint8) bool {
	duty, ok := DutyFor(p)
	if !ok {
		return false
	}
	e.target = duty
	e.off = IsOff(duty)
	if e.ramping || e.current == e.target {
		return false
	}
	e.ramping = true
	return true
}

// SetFadeRate sets the duty units moved per step. Zero behaves as one.
func (e *Engine) SetFadeRate(rate uint8) {
	e.rate = uint16(rate)
	if e.rate == 0 {
		e.rate = 1
	}
}

// Step moves the current duty one fade step towards the target and
// reports whether the ramp has finished.
func (e *Engine) Step() bool {
	if e.current == e.target {
		e.ramping = false
		return true
	}
	e.SetLoad(true)

	if e.target > e.current {
		next := e.current + e.rate
		if next >= e.target || next < e.current {
			next = e.target
		}
		e.current = next
	} else {
		if e.current-e.target <= e.rate {
			e.current = e.target
		} else {
			e.current -= e.rate
		}
	}
	e.writeDuty()

	if e.current != e.target {
		return false
	}
	e.ramping = false
	if e.off {
		e.SetLoad(false)
	}
	return true
}

// Jump sets current and target duty at once, cancelling any ramp.
func (e *Engine) Jump(duty uint16) {
	e.current = duty
	e.target = duty
	e.off = IsOff(duty)
	e.ramping = false
	e.writeDuty()
}

// SetLoad switches the load output.
func (e *Engine) SetLoad(on bool) {
	if on == e.loadOn {
		return
	}
	if err := e.act.SetLoad(on); err != nil {
		e.logger.Warn("switch load", "on", on, "err", err)
		return
	}
	e.loadOn = on
}

// SetOff overrides the manually-off flag without touching the duty.
func (e *Engine) SetOff(off bool) {
	e.off = off
}

func (e *Engine) writeDuty() {
	if err := e.act.SetDuty(e.current); err != nil {
		e.logger.Warn("set duty", "duty", e.current, "err", err)
	}
}

func (e *Engine) Current() uint16 { return e.current }
func (e *Engine) Target() uint16 { return e.target }
func (e *Engine) Off() bool { return e.off }
func (e *Engine) Ramping() bool { return e.ramping }
func (e *Engine) LoadOn() bool { return e.loadOn }
func (e *Engine) FadeRate() uint16 { return e.rate }
