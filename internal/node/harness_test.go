package node

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sort"
	"testing"
	"time"

	"lightnode/internal/protocol"
	"lightnode/internal/store"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeTimer struct {
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	now    time.Time
	seq    int
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now.Add(d), seq: c.seq, f: f}
	c.seq++
	c.timers = append(c.timers, t)
	return t
}

// next removes and returns the earliest live timer due by end.
func (c *fakeClock) next(end time.Time) *fakeTimer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.SliceStable(c.timers, func(i, j int) bool {
		if !c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].at.Before(c.timers[j].at)
		}
		return c.timers[i].seq < c.timers[j].seq
	})
	if len(c.timers) == 0 || c.timers[0].at.After(end) {
		return nil
	}
	return c.timers[0]
}

type recordingTransport struct {
	writes [][]byte
	err    error
}

func (r *recordingTransport) Write(_ context.Context, p []byte) error {
	if r.err != nil {
		return r.err
	}
	r.writes = append(r.writes, append([]byte(nil), p...))
	return nil
}

type recordingActuator struct {
	duties []uint16
	loads  []bool
}

func (r *recordingActuator) SetDuty(d uint16) error {
	r.duties = append(r.duties, d)
	return nil
}

func (r *recordingActuator) SetLoad(on bool) error {
	r.loads = append(r.loads, on)
	return nil
}

type harness struct {
	t      *testing.T
	n      *Node
	clock  *fakeClock
	tr     *recordingTransport
	act    *recordingActuator
	flash  *store.MemFlash
	events []Event
}

var testIdentity = protocol.Identity{0xAB, 0xCD}

// newHarness boots a node on a fake clock and answers the identity
// request. Events are handled synchronously on the test goroutine.
func newHarness(t *testing.T, cfg store.PersistentConfig) *harness {
	t.Helper()
	h := newBootedHarness(t, cfg)
	h.receive([]byte("ABCD"))
	if h.n.state.Identity != testIdentity {
		t.Fatalf("identity = %v, want %v", h.n.state.Identity, testIdentity)
	}
	h.takeWrites()
	h.events = nil
	return h
}

// newBootedHarness boots a node and leaves the identity request pending.
func newBootedHarness(t *testing.T, cfg store.PersistentConfig) *harness {
	t.Helper()
	flash := store.NewMemFlash()
	st := store.NewConfigStore(flash, newTestLogger())
	if err := st.Commit(cfg); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	h := &harness{
		t:     t,
		clock: newFakeClock(),
		tr:    &recordingTransport{},
		act:   &recordingActuator{},
		flash: flash,
	}
	bus := NewEventBus(newTestLogger())
	bus.OnAll(func(e Event) { h.events = append(h.events, e) })
	h.n = New(Config{Name: "test"}, st, h.tr, h.act, bus, newTestLogger(), WithClock(h.clock))
	h.n.boot()
	h.drain()

	if len(h.tr.writes) != 1 || !bytes.Equal(h.tr.writes[0], identityRequest) {
		t.Fatalf("boot writes = %q, want identity request", h.tr.writes)
	}
	return h
}

func newDefaultHarness(t *testing.T) *harness {
	return newHarness(t, store.Defaults())
}

func (h *harness) drain() {
	for {
		select {
		case ev := <-h.n.mailbox:
			h.n.handle(ev)
		default:
			return
		}
	}
}

func (h *harness) receive(data []byte) {
	h.n.handle(rxEvent{data: data})
	h.drain()
}

func (h *harness) send(body string, dest byte) {
	h.t.Helper()
	f, err := protocol.NewFrame(body, dest)
	if err != nil {
		h.t.Fatalf("NewFrame(%q): %v", body, err)
	}
	h.receive(f[:])
}

// submit queues a frame the way Node.Submit does.
func (h *harness) submit(body string, dest byte) {
	h.t.Helper()
	f, err := protocol.NewFrame(body, dest)
	if err != nil {
		h.t.Fatalf("NewFrame(%q): %v", body, err)
	}
	h.n.handle(frameEvent{frame: f})
	h.drain()
}

func (h *harness) motion() {
	h.n.handle(motionEvent{})
	h.drain()
}

// advance moves the fake clock, firing due timers in order.
func (h *harness) advance(d time.Duration) {
	end := h.clock.now.Add(d)
	for {
		t := h.clock.next(end)
		if t == nil {
			break
		}
		if t.at.After(h.clock.now) {
			h.clock.now = t.at
		}
		t.fired = true
		t.f()
		h.drain()
	}
	h.clock.now = end
}

func (h *harness) takeWrites() [][]byte {
	w := h.tr.writes
	h.tr.writes = nil
	return w
}

// responses decodes every pending write as a response with escapable
// payload bytes.
func (h *harness) responses(escapable int) []protocol.Response {
	h.t.Helper()
	var out []protocol.Response
	for _, w := range h.takeWrites() {
		r, err := protocol.DecodeResponse(w, escapable)
		if err != nil {
			h.t.Fatalf("DecodeResponse(%q): %v", w, err)
		}
		out = append(out, r)
	}
	return out
}

// single expects exactly one single-value response and returns it.
func (h *harness) single() protocol.Response {
	h.t.Helper()
	rs := h.responses(1)
	if len(rs) != 1 {
		h.t.Fatalf("got %d responses, want 1", len(rs))
	}
	return rs[0]
}

func (h *harness) expectAck() {
	h.t.Helper()
	r := h.single()
	if len(r.Values) != 1 || r.Values[0] != protocol.Ack {
		h.t.Fatalf("response values = %v, want ack", r.Values)
	}
}

func (h *harness) expectValue(want uint8) {
	h.t.Helper()
	r := h.single()
	if len(r.Values) != 1 || r.Values[0] != want {
		h.t.Fatalf("response values = %v, want [%d]", r.Values, want)
	}
}

func (h *harness) expectSilence() {
	h.t.Helper()
	if w := h.takeWrites(); len(w) != 0 {
		h.t.Fatalf("unexpected writes: %q", w)
	}
}

func (h *harness) eventsOf(typ string) []Event {
	var out []Event
	for _, e := range h.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
