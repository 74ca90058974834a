package store

import (
	"lightnode/internal/protocol"
	"lightnode/internal/registry"
)

// BlockSize is the size of the configuration block.
const BlockSize = 64

const erased byte = 0xFF

// Field locates one persisted value inside the block. Multi-slot fields
// repeat Count times, Stride bytes apart.
type Field struct {
	Name   string
	Offset int
	Count  int
	Stride int
}

// At returns the offset of slot i.
func (f Field) At(i int) int {
	return f.Offset + i*f.Stride
}

var (
	FieldSensingFreq  = Field{Name: "sensing_freq", Offset: 0x00, Count: 1, Stride: 1}
	FieldTimeout      = Field{Name: "timeout", Offset: 0x02, Count: 1, Stride: 1}
	FieldHost         = Field{Name: "host_address", Offset: 0x04, Count: 4, Stride: 1}
	FieldCommissioned = Field{Name: "commissioned", Offset: 0x08, Count: 1, Stride: 1}
	FieldFadeRate     = Field{Name: "fade_rate", Offset: 0x1A, Count: 1, Stride: 1}
	FieldFadeDelay    = Field{Name: "fade_delay", Offset: 0x1C, Count: 2, Stride: 1}
	FieldPowerOn      = Field{Name: "power_on_level", Offset: 0x20, Count: 1, Stride: 1}
	FieldScenes       = Field{Name: "scenes", Offset: 0x22, Count: registry.Slots, Stride: 2}
	FieldGroups       = Field{Name: "groups", Offset: 0x2C, Count: registry.Slots, Stride: 2}
	FieldLISMode      = Field{Name: "lis_mode", Offset: 0x36, Count: 1, Stride: 1}
	FieldLISGroup     = Field{Name: "lis_group", Offset: 0x38, Count: 1, Stride: 1}
	FieldPolling      = Field{Name: "polling_address", Offset: 0x3A, Count: 4, Stride: 1}
)

// Layout lists every persisted field in block order.
var Layout = []Field{
	FieldSensingFreq,
	FieldTimeout,
	FieldHost,
	FieldCommissioned,
	FieldFadeRate,
	FieldFadeDelay,
	FieldPowerOn,
	FieldScenes,
	FieldGroups,
	FieldLISMode,
	FieldLISGroup,
	FieldPolling,
}

// Compiled-in defaults.
const (
	DefaultSensingFreq  uint8 = 15
	DefaultTimeout      uint8 = 15
	DefaultFadeRate     uint8 = 1
	DefaultPowerOnLevel uint8 = 99
)

// DefaultFadeDelay is 30 tens of delay units.
var DefaultFadeDelay = [2]uint8{3, 0}

// PersistentConfig is the unit committed to flash.
type PersistentConfig struct {
	SensingFreq    uint8
	TimeoutMinutes uint8
	Host           protocol.HostAddress
	Polling        protocol.HostAddress
	Commissioned   bool
	FadeRate       uint8
	FadeDelay      [2]uint8
	PowerOnLevel   uint8
	Groups         [registry.Slots]byte
	Scenes         registry.SceneTable
	LISMode        bool
	LISGroup       byte
}

// Defaults returns the configuration of an erased block.
func Defaults() PersistentConfig {
	return PersistentConfig{
		SensingFreq:    DefaultSensingFreq,
		TimeoutMinutes: DefaultTimeout,
		Host:           protocol.DefaultHostAddress,
		Polling:        protocol.DefaultPollingAddress,
		FadeRate:       DefaultFadeRate,
		FadeDelay:      DefaultFadeDelay,
		PowerOnLevel:   DefaultPowerOnLevel,
		Groups:         registry.NewGroupSet().Slots(),
		Scenes:         registry.NewSceneTable(),
		LISGroup:       registry.Empty,
	}
}

// FadeDelayUnits converts the two delay digits into per-step delay units.
func (c PersistentConfig) FadeDelayUnits() int {
	return (int(c.FadeDelay[0])*10 + int(c.FadeDelay[1])) * 10
}

// Encode lays the configuration out as a block image. Unused bytes stay
// erased.
func Encode(c PersistentConfig) [BlockSize]byte {
	var b [BlockSize]byte
	for i := range b {
		b[i] = erased
	}
	b[FieldSensingFreq.Offset] = c.SensingFreq
	b[FieldTimeout.Offset] = c.TimeoutMinutes
	copy(b[FieldHost.Offset:], c.Host[:])
	b[FieldCommissioned.Offset] = flag(c.Commissioned)
	b[FieldFadeRate.Offset] = c.FadeRate
	b[FieldFadeDelay.At(0)] = c.FadeDelay[0]
	b[FieldFadeDelay.At(1)] = c.FadeDelay[1]
	b[FieldPowerOn.Offset] = c.PowerOnLevel
	for i := 0; i < registry.Slots; i++ {
		b[FieldScenes.At(i)] = c.Scenes[i]
		b[FieldGroups.At(i)] = c.Groups[i]
	}
	b[FieldLISMode.Offset] = flag(c.LISMode)
	b[FieldLISGroup.Offset] = c.LISGroup
	copy(b[FieldPolling.Offset:], c.Polling[:])
	return b
}

// Decode reads a block image. Erased fields take their defaults; a zero
// timeout or fade rate and an all-zero fade delay are treated as erased.
func Decode(b [BlockSize]byte) PersistentConfig {
	c := Defaults()

	if v := b[FieldSensingFreq.Offset]; v != erased {
		c.SensingFreq = v
	}
	if v := b[FieldTimeout.Offset]; v != erased && v != 0 {
		c.TimeoutMinutes = v
	}
	if b[FieldHost.Offset] != erased {
		copy(c.Host[:], b[FieldHost.Offset:FieldHost.Offset+4])
	}
	if v := b[FieldCommissioned.Offset]; v != erased {
		c.Commissioned = v != 0
	}
	if v := b[FieldFadeRate.Offset]; v != erased && v != 0 {
		c.FadeRate = v
	}
	d0, d1 := b[FieldFadeDelay.At(0)], b[FieldFadeDelay.At(1)]
	if d0 != erased && !(d0 == 0 && d1 == 0) {
		c.FadeDelay = [2]uint8{d0, d1}
		if d1 == erased {
			c.FadeDelay[1] = 0
		}
	}
	if v := b[FieldPowerOn.Offset]; v != erased {
		c.PowerOnLevel = v
	}
	for i := 0; i < registry.Slots; i++ {
		if v := b[FieldScenes.At(i)]; v != erased {
			c.Scenes[i] = v
		}
		c.Groups[i] = b[FieldGroups.At(i)]
	}
	if v := b[FieldLISMode.Offset]; v != erased {
		c.LISMode = v != 0
	}
	c.LISGroup = b[FieldLISGroup.Offset]
	if b[FieldPolling.Offset] != erased {
		copy(c.Polling[:], b[FieldPolling.Offset:FieldPolling.Offset+4])
	}
	return c
}

func flag(v bool) byte {
	if v {
		return 1
	}
	return 0
}
