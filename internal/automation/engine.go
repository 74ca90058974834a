//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lightnode/internal/node"
	"lightnode/internal/protocol"

	lua "github.com/yuin/gopher-lua"
)

// Controller is the part of a node that scripts can drive.
type Controller interface {
	Events() *node.EventBus
	Submit(f protocol.Frame) error
	Snapshot(ctx context.Context) (node.Snapshot, error)
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// luaEventHandler is a registered Lua callback for one event type.
type luaEventHandler struct {
	eventType string
	filter    map[string]string // event data keys that must match (empty = any)
	fn        *lua.LFunction
}

// scriptVM is a running Lua VM for a single script.
type scriptVM struct {
	state    *lua.LState
	commands chan func(*lua.LState) // serializes Lua access
	handlers []luaEventHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers
	logf     func(msg string)
}

// Engine manages Lua VMs and dispatches node events to scripts.
type Engine struct {
	ctrl    Controller
	manager *Manager
	logger  *slog.Logger

	runTimeout time.Duration

	mu    sync.Mutex
	vms   map[string]*scriptVM // script ID -> running VM
	unsub func()
}

// NewEngine creates a new automation engine.
func NewEngine(ctrl Controller, mgr *Manager, logger *slog.Logger) *Engine {
	return &Engine{
		ctrl:       ctrl,
		manager:    mgr,
		logger:     logger.With("component", "automation"),
		runTimeout: 5 * time.Second,
		vms:        make(map[string]*scriptVM),
	}
}

// Start subscribes to the node events and loads all enabled scripts.
func (e *Engine) Start() {
	e.unsub = e.ctrl.Events().OnAll(e.dispatchEvent)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}

	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	running := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "scripts", running)
}

// Stop cancels all VMs and unsubscribes from the event bus.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}

	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}

	e.logger.Info("automation engine stopped")
}

// Running reports whether a VM is loaded for the script.
func (e *Engine) Running(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.vms[id]
	return ok
}

// ReloadScript stops the old VM (if any) and starts a new one.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}

	if !s.Meta.Enabled {
		return nil
	}

	return e.startScript(s)
}

// StopScript stops a running script VM.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// RunScript executes a stored script once in a temporary VM.
func (e *Engine) RunScript(id string) *RunResult {
	start := time.Now()

	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{OK: false, Error: "script not found: " + err.Error(), Duration: time.Since(start).String()}
	}

	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes Lua code in a temporary sandboxed VM. Handlers the
// code registers are invoked once with a synthetic event so their actions
// run too. Log output is captured in the result.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), e.runTimeout)
	defer cancel()

	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	var (
		logs  []string
		logMu sync.Mutex
	)
	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
		logf: func(msg string) {
			logMu.Lock()
			logs = append(logs, msg)
			logMu.Unlock()
		},
	}
	registerNodeModule(L, vm, e)

	fail := func(err error) *RunResult {
		errStr := err.Error()
		if strings.Contains(errStr, "context deadline exceeded") {
			errStr = fmt.Sprintf("timeout (%s)", e.runTimeout)
		}
		e.logger.Warn("run script error", "err", errStr)
		logMu.Lock()
		defer logMu.Unlock()
		return &RunResult{OK: false, Error: errStr, Logs: logs, Duration: time.Since(start).String()}
	}

	if err := L.DoString(code); err != nil {
		return fail(err)
	}

	vm.mu.Lock()
	handlers := make([]luaEventHandler, len(vm.handlers))
	copy(handlers, vm.handlers)
	vm.mu.Unlock()

	for _, h := range handlers {
		ev := L.NewTable()
		ev.RawSetString("type", lua.LString(h.eventType))
		for k, v := range h.filter {
			ev.RawSetString(k, lua.LString(v))
		}
		if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, ev); err != nil {
			return fail(err)
		}
	}

	dur := time.Since(start)
	e.logger.Debug("run script complete", "handlers", len(handlers), "duration", dur)
	logMu.Lock()
	defer logMu.Unlock()
	return &RunResult{OK: true, Logs: logs, Duration: dur.String()}
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

// newSandbox returns a Lua state without filesystem, process or loader
// access.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())
	L := newSandbox()

	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	scriptLog := e.logger.With("script", s.ID)
	vm.logf = func(msg string) { scriptLog.Info(msg) }
	registerNodeModule(L, vm, e)

	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	if old, ok := e.vms[s.ID]; ok {
		old.cancel()
	}
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatchEvent routes a node event to every matching Lua handler. It
// runs on the node loop, so it only queues work for the VMs.
func (e *Engine) dispatchEvent(event node.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	for _, vm := range vms {
		vm.mu.Lock()
		handlers := make([]luaEventHandler, len(vm.handlers))
		copy(handlers, vm.handlers)
		vm.mu.Unlock()

		for _, h := range handlers {
			if !matchesHandler(h, event) {
				continue
			}
			fn := h.fn
			if !vm.enqueue(func(L *lua.LState) { e.callHandler(L, fn, event) }) {
				e.logger.Warn("script command channel full, dropping event", "event", event.Type)
			}
		}
	}
}

// enqueue hands fn to the VM goroutine without blocking. A stopped VM
// accepts and discards work.
func (vm *scriptVM) enqueue(fn func(*lua.LState)) bool {
	select {
	case <-vm.ctx.Done():
		return true
	default:
	}
	select {
	case vm.commands <- fn:
		return true
	default:
		return false
	}
}

func matchesHandler(h luaEventHandler, event node.Event) bool {
	if h.eventType != "*" && h.eventType != event.Type {
		return false
	}
	if len(h.filter) == 0 {
		return true
	}

	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return false
	}
	for k, want := range h.filter {
		v, ok := data[k]
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, event node.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	eventTable := L.NewTable()
	eventTable.RawSetString("type", lua.LString(event.Type))
	if data, ok := event.Data.(map[string]interface{}); ok {
		for k, v := range data {
			eventTable.RawSetString(k, goToLua(L, v))
		}
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, eventTable); err != nil {
		e.logger.Error("lua handler error", "event", event.Type, "err", err)
	}
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case map[string]interface{}:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []interface{}:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
