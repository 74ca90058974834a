package node

import "time"

// Clock schedules the node's one-shot deadlines.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending deadline.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type timerKind uint8

const (
	timerIdleGap timerKind = iota
	timerOccupancy
	timerSample
	timerRamp
	timerIdentity
	timerBlink
	numTimers
)

func (k timerKind) String() string {
	switch k {
	case timerIdleGap:
		return "idle_gap"
	case timerOccupancy:
		return "occupancy"
	case timerSample:
		return "sample"
	case timerRamp:
		return "ramp"
	case timerIdentity:
		return "identity"
	case timerBlink:
		return "blink"
	default:
		return "unknown"
	}
}

type timerSlot struct {
	timer Timer
	epoch uint64
	armed bool
}

// arm (re)schedules a timer. Expiries from earlier arms are ignored.
func (n *Node) arm(kind timerKind, d time.Duration) {
	s := &n.timers[kind]
	if s.timer != nil {
		s.timer.Stop()
	}
	s.epoch++
	s.armed = true
	epoch := s.epoch
	s.timer = n.clock.AfterFunc(d, func() {
		n.post(timerEvent{kind: kind, epoch: epoch})
	})
}

func (n *Node) disarm(kind timerKind) {
	s := &n.timers[kind]
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.epoch++
	s.armed = false
}

// fired consumes an expiry and reports whether it is still current.
func (n *Node) fired(ev timerEvent) bool {
	s := &n.timers[ev.kind]
	if !s.armed || s.epoch != ev.epoch {
		return false
	}
	s.armed = false
	s.timer = nil
	return true
}

func (n *Node) stopTimers() {
	for k := timerKind(0); k < numTimers; k++ {
		n.disarm(k)
	}
}
