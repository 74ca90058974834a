// Package occupancy implements the motion timeout and presence sampling
// state machine. It holds no timers itself: the owner feeds it ticks and
// sampling-window ends and re-arms its timers whenever an epoch changes.
package occupancy

import "fmt"

// State is the operating mode of the sensor logic.
type State uint8

const (
	Disabled State = iota
	Armed
	RequestSampling
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Armed:
		return "armed"
	case RequestSampling:
		return "request_sampling"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Action is a set of load requests raised by a transition.
type Action uint8

const (
	LoadOn Action = 1 << iota
	LoadOff
	AnnounceOn
	AnnounceOff
)

// Has reports whether all bits of b are set.
func (a Action) Has(b Action) bool {
	return a&b == b
}

// Defaults applied at boot and by a factory reset.
const (
	DefaultTimeoutMinutes uint8 = 15
	DefaultThreshold      uint8 = 1
)

// Machine is the occupancy state. It is driven from a single goroutine.
type Machine struct {
	state     State
	threshold uint8
	debounce  uint8

	timeout      uint8
	ticks        uint32
	timerRunning bool
	timerEpoch   uint64

	sampleEpoch  uint64
	motionFlag   bool
	presentCount uint8

	// timedOut is set while the load is off because the timeout fired.
	timedOut bool
}

// New returns a disabled machine. A threshold of zero counts as one.
func New(timeoutMinutes, threshold uint8) *Machine {
	if threshold == 0 {
		threshold = 1
	}
	return &Machine{
		threshold: threshold,
		timeout:   timeoutMinutes,
		timedOut:  true,
	}
}

// EnableSensor arms motion detection and starts the timeout.
func (m *Machine) EnableSensor() {
	m.state = Armed
	m.debounce = 0
	m.restartTimer()
}

// EnableRequestMode arms motion detection and additionally starts
// presence sampling.
func (m *Machine) EnableRequestMode() {
	m.state = RequestSampling
	m.debounce = 0
	m.motionFlag = false
	m.sampleEpoch++
	m.restartTimer()
}

// Disable stops all sensor logic.
func (m *Machine) Disable() {
	m.state = Disabled
	m.debounce = 0
	m.motionFlag = false
	if m.timerRunning {
		m.timerRunning = false
		m.timerEpoch++
	}
	m.ticks = 0
}

// Reset restores boot defaults.
func (m *Machine) Reset(timeoutMinutes uint8) {
	m.Disable()
	m.timeout = timeoutMinutes
	m.presentCount = 0
	m.timedOut = true
}

// Motion handles one motion edge. manuallyOff suppresses switching the
// load on while the lamp is dimmed to 0%.
func (m *Machine) Motion(manuallyOff bool) Action {
	if m.state == Disabled {
		return 0
	}
	m.debounce++
	if m.debounce < m.threshold {
		return 0
	}

	var act Action
	if !manuallyOff {
		act |= LoadOn
		if m.timedOut {
			act |= AnnounceOn
			m.timedOut = false
		}
	}
	m.restartTimer()
	m.motionFlag = true
	m.debounce = 0
	return act
}

// Tick advances the timeout by one minute.
func (m *Machine) Tick() Action {
	if m.state == Disabled || !m.timerRunning {
		return 0
	}
	m.ticks++
	if m.ticks < uint32(m.timeout) {
		return 0
	}
	m.timerRunning = false
	m.timerEpoch++
	m.ticks = 0
	m.timedOut = true
	return LoadOff | AnnounceOff
}

// SampleWindow closes one presence sampling window and reports whether
// presence was counted.
func (m *Machine) SampleWindow() bool {
	if m.state != RequestSampling || !m.motionFlag {
		return false
	}
	m.motionFlag = false
	m.presentCount++
	if m.presentCount == 255 {
		m.presentCount = 0
	}
	return true
}

// SetTimeout changes the timeout length and restarts counting.
func (m *Machine) SetTimeout(minutes uint8) {
	m.timeout = minutes
	m.ticks = 0
	if m.timerRunning {
		m.timerEpoch++
	}
}

// RestartTimer restarts the timeout if the sensor is active.
func (m *Machine) RestartTimer() {
	if m.state != Disabled {
		m.restartTimer()
	}
}

func (m *Machine) restartTimer() {
	m.ticks = 0
	m.timerRunning = true
	m.timerEpoch++
}

// ResetSampling restarts the sampling window after a period change.
func (m *Machine) ResetSampling() {
	m.motionFlag = false
	m.sampleEpoch++
}

// ClearCount zeroes the presence counter.
func (m *Machine) ClearCount() {
	m.presentCount = 0
}

func (m *Machine) State() State { return m.state }
func (m *Machine) Timeout() uint8 { return m.timeout }
func (m *Machine) PresentCount() uint8 { return m.presentCount }
func (m *Machine) MotionSeen() bool { return m.motionFlag }
func (m *Machine) TimedOut() bool { return m.timedOut }
func (m *Machine) TimerRunning() bool { return m.timerRunning && m.state != Disabled }
func (m *Machine) TimerEpoch() uint64 { return m.timerEpoch }
func (m *Machine) Sampling() bool { return m.state == RequestSampling }
func (m *Machine) SampleEpoch() uint64 { return m.sampleEpoch }
func (m *Machine) ElapsedMinutes() uint32 { return m.ticks }
