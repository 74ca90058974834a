package node

import (
	"lightnode/internal/dimmer"
	"lightnode/internal/protocol"
	"lightnode/internal/registry"
	"lightnode/internal/store"
)

// handleFrame runs one frame through the address filter, the grammar and
// duplicate suppression, then executes it.
func (n *Node) handleFrame(f protocol.Frame) {
	dest := f.Dest()
	if dest != protocol.Broadcast && !n.state.Groups.Contains(dest) {
		n.drop(f, "unaddressed")
		return
	}
	cmd, ok := protocol.Match(f)
	if !ok {
		n.drop(f, "unknown")
		return
	}
	if cmd.ID == n.state.LastCommand {
		n.drop(f, "duplicate")
		return
	}
	if !n.execute(cmd) {
		n.drop(f, "locked")
		return
	}
	n.state.LastCommand = cmd.ID
	n.logger.Debug("command executed", "command", cmd.ID.String(), "dest", dest)
	n.emit(EventCommand, map[string]interface{}{
		"command": cmd.ID.String(),
		"dest":    int(dest),
	})
}

func (n *Node) drop(f protocol.Frame, reason string) {
	n.logger.Debug("frame dropped", "frame", f.String(), "reason", reason)
	n.emit(EventDropped, map[string]interface{}{"frame": f.String(), "reason": reason})
}

// execute performs a matched command. It returns false when the command
// was refused and must not enter the duplicate cache.
func (n *Node) execute(cmd protocol.Command) bool {
	st := &n.state
	v := cmd.Value

	switch cmd.ID {
	case protocol.CmdSetHostAddress:
		if st.Commissioned {
			return false
		}
		st.Host = cmd.Address
		n.sendAddress(st.Host)
	case protocol.CmdResetHostAddress:
		st.Host = cmd.Address
		n.sendAddress(st.Host)
	case protocol.CmdSetPollingAddress:
		st.Polling = cmd.Address
		n.sendAddress(st.Polling)

	case protocol.CmdSetSensingFreq:
		n.ack()
		st.SensingFreq = v
		n.occ.ResetSampling()
	case protocol.CmdSetTimeout:
		n.ack()
		n.occ.SetTimeout(v)
	case protocol.CmdSetPowerOnLevel:
		n.ack()
		st.PowerOnLevel = v
	case protocol.CmdSetPercentage:
		n.ack()
		n.setLevel(v)
	case protocol.CmdSetFadeRate:
		n.ack()
		st.FadeRate = v
		n.dim.SetFadeRate(v)
	case protocol.CmdSetFadeDelay:
		n.ack()
		st.FadeDelay = cmd.Digits

	case protocol.CmdSetGroup:
		n.ack()
		st.Groups.Add(v)
	case protocol.CmdSetScene:
		n.ack()
		st.Scenes.Set(int(v), st.Percentage)
	case protocol.CmdGetScene:
		if level, ok := st.Scenes.Get(int(v)); ok {
			n.sendValue(level)
		}
	case protocol.CmdStoreLISGroup:
		n.ack()
		st.LISGroup = v
	case protocol.CmdGotoScene:
		n.ack()
		if level, ok := st.Scenes.Get(int(v)); ok {
			n.setLevel(level)
		}
	case protocol.CmdGetGroup:
		if g, ok := st.Groups.Slot(int(v) - 1); ok {
			n.sendValue(g)
		}
	case protocol.CmdClearScene:
		n.ack()
		st.Scenes.Clear(int(v))

	case protocol.CmdIdentify:
		n.ack()
		n.startBlink()
	case protocol.CmdWriteFlash:
		n.ack()
		n.commit()
	case protocol.CmdCommission:
		n.ack()
		st.Commissioned = true
	case protocol.CmdDecommission:
		n.ack()
		st.Commissioned = false
	case protocol.CmdGetSensorData:
		n.sendValue(n.occ.PresentCount() + 1)
	case protocol.CmdClearCount:
		n.ack()
		n.occ.ClearCount()
	case protocol.CmdRelayOn:
		n.ack()
		n.occ.Disable()
		n.dim.Jump(dimmer.FullDuty)
		n.dim.SetLoad(true)
		st.Percentage = dimmer.MaxLevel
	case protocol.CmdRelayOff:
		n.ack()
		n.occ.Disable()
		n.dim.Jump(dimmer.OffDuty)
		n.dim.SetLoad(false)
		st.Percentage = 0
	case protocol.CmdDisableSensor:
		n.ack()
		n.occ.Disable()
		st.LISMode = false
	case protocol.CmdEnableSensor:
		n.ack()
		n.occ.EnableSensor()
		st.LISMode = true
	case protocol.CmdGetSensingFreq:
		n.sendValue(st.SensingFreq)
	case protocol.CmdFactoryReset:
		n.ack()
		n.factoryReset()
	case protocol.CmdGetSettings:
		n.reply(st.Host, []byte{n.occ.Timeout(), st.PowerOnLevel},
			[]byte{st.FadeRate, st.FadeDelay[0], st.FadeDelay[1]})
	case protocol.CmdEnableRequestMode:
		n.ack()
		n.enableRequestMode()

	case protocol.CmdGetTimeout:
		n.sendValue(n.occ.Timeout())
	case protocol.CmdGetPercentage:
		n.sendValue(st.Percentage)
	case protocol.CmdGetGroupCount:
		n.sendValue(uint8(st.Groups.Count()))
	case protocol.CmdClearGroup:
		n.ack()
		st.Groups.Remove(cmd.Dest)
	case protocol.CmdGetLISGroup:
		n.sendValue(st.LISGroup)
	case protocol.CmdClearLISGroup:
		n.ack()
		st.LISGroup = registry.Empty
	case protocol.CmdGetHealth:
		n.reply(st.Polling, []byte{st.Percentage}, nil)
	case protocol.CmdGetOwnAddress:
		n.requestIdentity(func() { n.sendAddress(n.state.Host) })
	}
	return true
}

func (n *Node) enableRequestMode() {
	st := &n.state
	st.PowerOnLevel = dimmer.MaxLevel
	st.FadeDelay = store.DefaultFadeDelay
	st.FadeRate = store.DefaultFadeRate
	st.LISMode = true
	n.dim.SetFadeRate(st.FadeRate)
	n.dim.SetLoad(true)
	n.occ.EnableRequestMode()
	n.setLevel(dimmer.MaxLevel)
}

func (n *Node) factoryReset() {
	cfg, err := n.store.FactoryReset()
	if err != nil {
		n.logger.Error("factory reset commit failed", "err", err)
	}
	identity := n.state.Identity
	n.apply(cfg)
	n.state.Identity = identity
	n.occ.Reset(cfg.TimeoutMinutes)
	n.dim.Jump(dimmer.FullDuty)
	n.dim.SetLoad(true)
	n.state.Percentage = dimmer.MaxLevel
	n.emit(EventCommitted, map[string]interface{}{"factory_reset": true, "ok": err == nil})
}

func (n *Node) commit() {
	err := n.store.Commit(n.state.persistent(n.occ.Timeout()))
	if err != nil {
		n.logger.Error("configuration commit failed", "err", err)
	}
	n.emit(EventCommitted, map[string]interface{}{"factory_reset": false, "ok": err == nil})
}

func (n *Node) ack() {
	n.reply(n.state.Host, []byte{protocol.Ack}, nil)
}

func (n *Node) sendValue(v uint8) {
	n.reply(n.state.Host, []byte{v}, nil)
}

func (n *Node) sendAddress(to protocol.HostAddress) {
	n.reply(to, []byte{protocol.DeviceType}, nil)
}

func (n *Node) reply(to protocol.HostAddress, values, raw []byte) {
	resp := protocol.Response{
		Address:  to,
		Identity: n.state.Identity,
		Values:   values,
		Raw:      raw,
	}
	out, err := resp.Encode()
	if err != nil {
		n.logger.Error("encode response", "err", err)
		return
	}
	n.write(out)
}
