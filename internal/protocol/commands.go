package protocol

import "fmt"

// CommandID is the position of a command in the grammar table. The table
// order is the match priority.
type CommandID uint8

const (
	CmdSetHostAddress CommandID = iota
	CmdResetHostAddress
	CmdSetPollingAddress
	CmdSetSensingFreq
	CmdSetTimeout
	CmdSetPowerOnLevel
	CmdSetPercentage
	CmdSetFadeRate
	CmdSetFadeDelay
	CmdSetGroup
	CmdSetScene
	CmdGetScene
	CmdStoreLISGroup
	CmdGotoScene
	CmdGetGroup
	CmdClearScene
	CmdIdentify
	CmdWriteFlash
	CmdCommission
	CmdDecommission
	CmdGetSensorData
	CmdClearCount
	CmdRelayOn
	CmdRelayOff
	CmdDisableSensor
	CmdEnableSensor
	CmdGetSensingFreq
	CmdFactoryReset
	CmdGetSettings
	CmdEnableRequestMode
	CmdGetTimeout
	CmdGetPercentage
	CmdGetGroupCount
	CmdClearGroup
	CmdGetLISGroup
	CmdClearLISGroup
	CmdGetHealth
	CmdGetOwnAddress

	NumCommands int = iota
)

// NoCommand is the empty value of the duplicate-suppression cache.
const NoCommand CommandID = 0xFF

// ParamKind describes where a template carries its parameter.
type ParamKind uint8

const (
	ParamNone    ParamKind = iota
	ParamHex                // four hex characters at offsets 3-6
	ParamDecimal            // two decimal digits at offsets 5-6
	ParamDigit              // one digit at offset 6
)

// Template is one grammar entry. Body holds the literal characters with
// 'x' at parameter positions; Boundary is the first parameter offset, or
// BodySize for literal commands.
type Template struct {
	ID       CommandID
	Name     string
	Body     string
	Boundary int
	Param    ParamKind
}

// Prefix is the literal part a frame must reproduce.
func (t Template) Prefix() string {
	return t.Body[:t.Boundary]
}

// Literal reports whether the template carries no parameter.
func (t Template) Literal() bool {
	return t.Param == ParamNone
}

func hexCmd(id CommandID, name, prefix string) Template {
	return Template{ID: id, Name: name, Body: prefix + "xxxx", Boundary: 3, Param: ParamHex}
}

func decCmd(id CommandID, name, prefix string) Template {
	return Template{ID: id, Name: name, Body: prefix + "xx", Boundary: 5, Param: ParamDecimal}
}

func digitCmd(id CommandID, name, prefix string) Template {
	return Template{ID: id, Name: name, Body: prefix + "x", Boundary: 6, Param: ParamDigit}
}

func litCmd(id CommandID, name, body string) Template {
	return Template{ID: id, Name: name, Body: body, Boundary: BodySize, Param: ParamNone}
}

var templates = [NumCommands]Template{
	hexCmd(CmdSetHostAddress, "set_host_address", "ADH"),
	hexCmd(CmdResetHostAddress, "reset_host_address", "ADR"),
	hexCmd(CmdSetPollingAddress, "set_polling_address", "ADP"),
	decCmd(CmdSetSensingFreq, "set_sensing_freq", "ADSSF"),
	decCmd(CmdSetTimeout, "set_timeout", "ADSTO"),
	decCmd(CmdSetPowerOnLevel, "set_power_on_level", "ADOPL"),
	decCmd(CmdSetPercentage, "set_percentage", "ADSPL"),
	decCmd(CmdSetFadeRate, "set_fade_rate", "ADFDR"),
	decCmd(CmdSetFadeDelay, "set_fade_delay", "ADFDD"),
	decCmd(CmdSetGroup, "set_group", "ADSGP"),
	decCmd(CmdSetScene, "set_scene", "ADSSN"),
	decCmd(CmdGetScene, "get_scene", "ADGSN"),
	decCmd(CmdStoreLISGroup, "store_lis_group", "ADSTG"),
	digitCmd(CmdGotoScene, "goto_scene", "ADGTSN"),
	digitCmd(CmdGetGroup, "get_group", "ADGGPN"),
	digitCmd(CmdClearScene, "clear_scene", "ADCLRS"),
	litCmd(CmdIdentify, "identify", "ADIDDEV"),
	litCmd(CmdWriteFlash, "write_flash", "ADWRFLS"),
	litCmd(CmdCommission, "commission", "ADCMSET"),
	litCmd(CmdDecommission, "decommission", "ADCMRST"),
	litCmd(CmdGetSensorData, "get_sensor_data", "ADGSD00"),
	litCmd(CmdClearCount, "clear_count", "ADCLROS"),
	litCmd(CmdRelayOn, "relay_on", "ADLADON"),
	litCmd(CmdRelayOff, "relay_off", "ADLADOF"),
	litCmd(CmdDisableSensor, "disable_sensor", "ADDISOS"),
	litCmd(CmdEnableSensor, "enable_sensor", "ADENAOS"),
	litCmd(CmdGetSensingFreq, "get_sensing_freq", "ADGSF00"),
	litCmd(CmdFactoryReset, "factory_reset", "ADFTRST"),
	litCmd(CmdGetSettings, "get_settings", "ADGSSET"),
	litCmd(CmdEnableRequestMode, "enable_request_mode", "ADERQOS"),
	litCmd(CmdGetTimeout, "get_timeout", "ADGTOOS"),
	litCmd(CmdGetPercentage, "get_percentage", "ADGPLAD"),
	litCmd(CmdGetGroupCount, "get_group_count", "ADGNOGP"),
	litCmd(CmdClearGroup, "clear_group", "ADCLRGP"),
	litCmd(CmdGetLISGroup, "get_lis_group", "ADGGPLS"),
	litCmd(CmdClearLISGroup, "clear_lis_group", "ADCRGPL"),
	litCmd(CmdGetHealth, "get_health", "ADGSTAT"),
	litCmd(CmdGetOwnAddress, "get_own_address", "ADDROAD"),
}

// Templates returns the grammar in match order.
func Templates() []Template {
	out := make([]Template, NumCommands)
	copy(out, templates[:])
	return out
}

// Lookup returns the template for id.
func Lookup(id CommandID) (Template, bool) {
	if int(id) >= NumCommands {
		return Template{}, false
	}
	return templates[id], true
}

// LookupName finds a template by its snake_case name.
func LookupName(name string) (Template, bool) {
	for _, t := range templates {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

func (id CommandID) String() string {
	if id == NoCommand {
		return "none"
	}
	if t, ok := Lookup(id); ok {
		return t.Name
	}
	return fmt.Sprintf("command(%d)", uint8(id))
}
