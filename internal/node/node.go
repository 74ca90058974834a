package node

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lightnode/internal/dimmer"
	"lightnode/internal/occupancy"
	"lightnode/internal/protocol"
	"lightnode/internal/store"
)

// ErrStopped is returned when the node loop is no longer running.
var ErrStopped = errors.New("node stopped")

// identityRequest asks the host controller for the node identity.
var identityRequest = []byte("p\r")

const mailboxSize = 256

// Config holds node timing and identity settings.
type Config struct {
	Name            string
	IdleGap         time.Duration
	FadeUnit        time.Duration
	OccupancyTick   time.Duration
	SampleUnit      time.Duration
	IdentityTimeout time.Duration
	WriteTimeout    time.Duration
	BlinkInterval   time.Duration
	Debounce        uint8
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "lightnode"
	}
	if c.IdleGap <= 0 {
		c.IdleGap = 2 * time.Second
	}
	if c.FadeUnit <= 0 {
		c.FadeUnit = time.Microsecond
	}
	if c.OccupancyTick <= 0 {
		c.OccupancyTick = time.Minute
	}
	if c.SampleUnit <= 0 {
		c.SampleUnit = time.Second
	}
	if c.IdentityTimeout <= 0 {
		c.IdentityTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.BlinkInterval <= 0 {
		c.BlinkInterval = time.Second
	}
	if c.Debounce == 0 {
		c.Debounce = occupancy.DefaultThreshold
	}
}

// Transport carries bytes to the host controller.
type Transport interface {
	Write(ctx context.Context, p []byte) error
}

// Option configures a Node.
type Option func(*Node)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(n *Node) { n.clock = c }
}

type rxEvent struct{ data []byte }

type frameEvent struct{ frame protocol.Frame }

type motionEvent struct{}

type timerEvent struct {
	kind  timerKind
	epoch uint64
}

type queryEvent struct{ reply chan Snapshot }

// Node owns all device state. Every mutation happens on the loop
// goroutine; other goroutines talk to it through the mailbox.
type Node struct {
	cfg    Config
	store  *store.ConfigStore
	tr     Transport
	events *EventBus
	clock  Clock
	logger *slog.Logger

	asm   protocol.Assembler
	dim   *dimmer.Engine
	occ   *occupancy.Machine
	state DeviceState

	timers      [numTimers]timerSlot
	occEpoch    uint64
	sampleEpoch uint64
	blinkPhase  int
	onIdentity  []func()

	mailbox  chan any
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a node. Start loads the configuration and runs the loop.
func New(cfg Config, st *store.ConfigStore, tr Transport, act dimmer.Actuator, events *EventBus, logger *slog.Logger, opts ...Option) *Node {
	cfg.setDefaults()
	logger = logger.With("component", "node")
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:     cfg,
		store:   st,
		tr:      tr,
		events:  events,
		clock:   systemClock{},
		logger:  logger,
		dim:     dimmer.New(act, logger),
		occ:     occupancy.New(store.DefaultTimeout, cfg.Debounce),
		state:   stateFromConfig(store.Defaults()),
		mailbox: make(chan any, mailboxSize),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Start boots the node and launches the event loop.
func (n *Node) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.boot()
	n.wg.Add(1)
	go n.loop()
	return nil
}

// Stop terminates the loop and cancels pending deadlines.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.done)
		n.cancel()
	})
	n.wg.Wait()
}

// Events returns the node's event bus.
func (n *Node) Events() *EventBus {
	return n.events
}

// Name returns the configured node name.
func (n *Node) Name() string {
	return n.cfg.Name
}

// Receive queues bytes read from the host link.
func (n *Node) Receive(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	n.post(rxEvent{data: buf})
}

// Submit queues a complete frame. It passes the same address filter and
// duplicate suppression as frames from the host link.
func (n *Node) Submit(f protocol.Frame) error {
	if !n.post(frameEvent{frame: f}) {
		return ErrStopped
	}
	return nil
}

// InjectMotion queues one motion edge.
func (n *Node) InjectMotion() error {
	if !n.post(motionEvent{}) {
		return ErrStopped
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (n *Node) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !n.post(queryEvent{reply: reply}) {
		return Snapshot{}, ErrStopped
	}
	select {
	case s := <-reply:
		return s, nil
	case <-n.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (n *Node) post(ev any) bool {
	select {
	case <-n.done:
		return false
	default:
	}
	select {
	case n.mailbox <- ev:
		return true
	case <-n.done:
		return false
	}
}

func (n *Node) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			n.stopTimers()
			return
		case ev := <-n.mailbox:
			n.handle(ev)
		}
	}
}

// observation is the part of the state whose changes are published.
type observation struct {
	loadOn  bool
	duty    uint16
	ramping bool
}

func (n *Node) observe() observation {
	return observation{loadOn: n.dim.LoadOn(), duty: n.dim.Current(), ramping: n.dim.Ramping()}
}

func (n *Node) handle(ev any) {
	before := n.observe()

	switch ev := ev.(type) {
	case rxEvent:
		for _, b := range ev.data {
			n.feed(b)
		}
	case frameEvent:
		// Submitted frames open an idle gap like assembled ones, so the
		// duplicate cache empties after the same quiet period.
		n.arm(timerIdleGap, n.cfg.IdleGap)
		n.handleFrame(ev.frame)
	case motionEvent:
		n.handleMotion()
	case timerEvent:
		if n.fired(ev) {
			n.handleTimer(ev.kind)
		}
	case queryEvent:
		ev.reply <- n.snapshot()
	}

	n.syncTimers()
	n.publishChanges(before)
}

func (n *Node) feed(b byte) {
	switch n.asm.Feed(b) {
	case protocol.Started:
		if !n.asm.AwaitingIdentity() {
			n.arm(timerIdleGap, n.cfg.IdleGap)
		}
	case protocol.FrameReady:
		n.handleFrame(n.asm.Frame())
	case protocol.IdentityReady:
		n.identityAcquired(protocol.DeriveIdentity(n.asm.IdentityBytes()))
	}
}

func (n *Node) handleTimer(kind timerKind) {
	switch kind {
	case timerIdleGap:
		// Identity bytes are bounded by the identity timeout instead.
		if !n.asm.AwaitingIdentity() {
			if dropped := n.asm.Expire(); dropped > 0 {
				n.logger.Debug("partial frame discarded", "bytes", dropped)
				n.emit(EventDropped, map[string]interface{}{"reason": "idle_gap", "bytes": dropped})
			}
		}
		n.state.LastCommand = protocol.NoCommand
	case timerOccupancy:
		n.handleTick()
	case timerSample:
		if n.occ.SampleWindow() {
			n.emit(EventPresence, map[string]interface{}{"present_count": int(n.occ.PresentCount())})
		}
	case timerRamp:
		n.stepRamp()
	case timerIdentity:
		n.identityTimedOut()
	case timerBlink:
		n.stepBlink()
	}
}

// syncTimers aligns the occupancy deadlines with the machine state.
func (n *Node) syncTimers() {
	if n.occ.TimerRunning() {
		if !n.timers[timerOccupancy].armed || n.occEpoch != n.occ.TimerEpoch() {
			n.occEpoch = n.occ.TimerEpoch()
			n.arm(timerOccupancy, n.cfg.OccupancyTick)
		}
	} else if n.timers[timerOccupancy].armed {
		n.disarm(timerOccupancy)
	}

	if n.occ.Sampling() {
		if !n.timers[timerSample].armed || n.sampleEpoch != n.occ.SampleEpoch() {
			n.sampleEpoch = n.occ.SampleEpoch()
			n.arm(timerSample, n.samplePeriod())
		}
	} else if n.timers[timerSample].armed {
		n.disarm(timerSample)
	}
}

func (n *Node) samplePeriod() time.Duration {
	freq := n.state.SensingFreq
	if freq == 0 {
		freq = 1
	}
	return time.Duration(freq) * n.cfg.SampleUnit
}

func (n *Node) publishChanges(before observation) {
	after := n.observe()
	if after.loadOn != before.loadOn {
		n.emit(EventLoad, map[string]interface{}{"on": after.loadOn})
	}
	if !after.ramping && (after.duty != before.duty || before.ramping) {
		n.emit(EventLevel, map[string]interface{}{
			"percentage": int(n.state.Percentage),
			"duty":       int(after.duty),
		})
	}
}

func (n *Node) emit(typ string, data map[string]interface{}) {
	if n.events == nil {
		return
	}
	n.events.Emit(Event{Type: typ, Data: data})
}

// write sends bytes to the host. Failures are logged; the command that
// produced them still counts as executed.
func (n *Node) write(p []byte) {
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.WriteTimeout)
	defer cancel()
	if err := n.tr.Write(ctx, p); err != nil {
		n.logger.Warn("host write failed", "bytes", len(p), "err", err)
	}
}

// boot applies the stored configuration and powers the lamp.
func (n *Node) boot() {
	cfg, err := n.store.Load()
	if err != nil {
		n.logger.Error("load configuration, using defaults", "err", err)
	}
	n.apply(cfg)

	duty, ok := dimmer.DutyFor(cfg.PowerOnLevel)
	if !ok {
		duty = dimmer.FullDuty
	}
	n.dim.Jump(duty)
	n.dim.SetLoad(!dimmer.IsOff(duty))
	if cfg.LISMode {
		n.occ.EnableSensor()
	}
	n.logger.Info("node booted",
		"host", cfg.Host.String(),
		"power_on", cfg.PowerOnLevel,
		"lis_mode", cfg.LISMode,
	)

	n.requestIdentity(nil)
	n.syncTimers()
}

func (n *Node) apply(cfg store.PersistentConfig) {
	n.state = stateFromConfig(cfg)
	n.occ.SetTimeout(cfg.TimeoutMinutes)
	n.dim.SetFadeRate(cfg.FadeRate)
}

// requestIdentity asks the host for the identity. then runs once the
// identity is known or the request timed out.
func (n *Node) requestIdentity(then func()) {
	if then != nil {
		n.onIdentity = append(n.onIdentity, then)
	}
	if n.asm.AwaitingIdentity() {
		return
	}
	n.asm.AwaitIdentity()
	n.arm(timerIdentity, n.cfg.IdentityTimeout)
	n.write(identityRequest)
}

func (n *Node) identityAcquired(id protocol.Identity) {
	n.disarm(timerIdentity)
	n.state.Identity = id
	n.logger.Info("identity acquired", "identity", id.String())
	n.emit(EventIdentity, map[string]interface{}{"identity": id.String()})
	n.flushIdentityWaiters()
}

func (n *Node) identityTimedOut() {
	n.asm.CancelIdentity()
	n.logger.Warn("identity request timed out", "identity", n.state.Identity.String())
	n.flushIdentityWaiters()
}

func (n *Node) flushIdentityWaiters() {
	waiters := n.onIdentity
	n.onIdentity = nil
	for _, f := range waiters {
		f()
	}
}

func (n *Node) fadeDelay() time.Duration {
	units := (int(n.state.FadeDelay[0])*10 + int(n.state.FadeDelay[1])) * 10
	return time.Duration(units) * n.cfg.FadeUnit
}

// setLevel changes the target percentage. The first ramp step runs
// immediately.
func (n *Node) setLevel(p uint8) {
	n.state.Percentage = p
	if n.dim.SetLevel(p) {
		n.stepRamp()
	}
	n.occ.RestartTimer()
}

func (n *Node) stepRamp() {
	if n.dim.Step() {
		n.disarm(timerRamp)
		return
	}
	n.arm(timerRamp, n.fadeDelay())
}

func (n *Node) startBlink() {
	n.blinkPhase = 0
	n.dim.SetLoad(true)
	n.arm(timerBlink, n.cfg.BlinkInterval)
}

func (n *Node) stepBlink() {
	n.blinkPhase++
	switch n.blinkPhase {
	case 1:
		n.dim.SetLoad(false)
		n.arm(timerBlink, n.cfg.BlinkInterval)
	default:
		n.dim.SetLoad(true)
	}
}

func (n *Node) handleMotion() {
	act := n.occ.Motion(n.dim.Off())
	n.applyOccupancy(act)
	n.emit(EventMotion, map[string]interface{}{
		"state":   n.occ.State().String(),
		"load_on": act.Has(occupancy.LoadOn),
	})
}

func (n *Node) handleTick() {
	act := n.occ.Tick()
	n.applyOccupancy(act)
	if act.Has(occupancy.LoadOff) {
		n.logger.Info("occupancy timeout", "minutes", n.occ.Timeout())
		n.emit(EventTimeout, map[string]interface{}{"minutes": int(n.occ.Timeout())})
	}
}

func (n *Node) applyOccupancy(act occupancy.Action) {
	if act.Has(occupancy.LoadOn) {
		n.dim.SetLoad(true)
	}
	if act.Has(occupancy.LoadOff) {
		n.dim.SetLoad(false)
	}
	if act.Has(occupancy.AnnounceOn) {
		n.write(protocol.Announcement(true, n.state.LISGroup))
	}
	if act.Has(occupancy.AnnounceOff) {
		n.write(protocol.Announcement(false, n.state.LISGroup))
	}
}
