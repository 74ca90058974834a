//go:build !no_automation

package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lightnode/internal/protocol"

	lua "github.com/yuin/gopher-lua"
)

const snapshotTimeout = 2 * time.Second

// registerNodeModule installs the global "node" table:
//
//	node.on(type, [filter], fn)   register an event handler ("*" = any)
//	node.send(body, [dest])       submit a command frame (dest defaults to broadcast)
//	node.set_level(percent)       submit a set-percentage command
//	node.state()                  current node snapshot as a table
//	node.after(seconds, fn)       run fn once after a delay
//	node.log(msg)                 write to the automation log
func registerNodeModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"on": func(L *lua.LState) int {
			return luaOn(L, vm)
		},
		"send": func(L *lua.LState) int {
			return luaSend(L, e)
		},
		"set_level": func(L *lua.LState) int {
			return luaSetLevel(L, e)
		},
		"state": func(L *lua.LState) int {
			return luaState(L, vm, e)
		},
		"after": func(L *lua.LState) int {
			return luaAfter(L, vm, e)
		},
		"log": func(L *lua.LState) int {
			vm.logf(L.CheckString(1))
			return 0
		},
	})
	L.SetGlobal("node", mod)
}

func luaOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{eventType: L.CheckString(1)}
	if L.GetTop() >= 3 {
		tbl := L.CheckTable(2)
		h.filter = make(map[string]string)
		tbl.ForEach(func(k, v lua.LValue) {
			h.filter[k.String()] = v.String()
		})
		h.fn = L.CheckFunction(3)
	} else {
		h.fn = L.CheckFunction(2)
	}

	vm.mu.Lock()
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()
	return 0
}

// submit returns nil and an error message on failure, true otherwise.
func submit(L *lua.LState, e *Engine, body string, dest byte) int {
	f, err := protocol.NewFrame(body, dest)
	if err == nil {
		err = e.ctrl.Submit(f)
	}
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func luaSend(L *lua.LState, e *Engine) int {
	body := L.CheckString(1)
	dest := L.OptInt(2, int(protocol.Broadcast))
	if dest < 0 || dest > 0xFF {
		L.ArgError(2, "destination out of range")
		return 0
	}
	return submit(L, e, body, byte(dest))
}

func luaSetLevel(L *lua.LState, e *Engine) int {
	p := L.CheckInt(1)
	if p < 0 {
		p = 0
	}
	if p > 99 {
		p = 99
	}
	return submit(L, e, fmt.Sprintf("ADSPL%02d", p), protocol.Broadcast)
}

func luaState(L *lua.LState, vm *scriptVM, e *Engine) int {
	ctx, cancel := context.WithTimeout(vm.ctx, snapshotTimeout)
	defer cancel()

	snap, err := e.ctrl.Snapshot(ctx)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	raw, _ := json.Marshal(snap)
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(goToLua(L, m))
	return 1
}

func luaAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	secs := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	d := time.Duration(float64(secs) * float64(time.Second))
	t := time.AfterFunc(d, func() {
		ok := vm.enqueue(func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("lua timer error", "err", err)
			}
		})
		if !ok {
			e.logger.Warn("script command channel full, dropping timer")
		}
	})
	go func() {
		<-vm.ctx.Done()
		t.Stop()
	}()
	return 0
}
