package node

import (
	"lightnode/internal/occupancy"
	"lightnode/internal/protocol"
	"lightnode/internal/registry"
	"lightnode/internal/store"
)

// DeviceState is the live configuration. The occupancy timeout lives in
// the occupancy machine and the duty cycle in the dimmer.
type DeviceState struct {
	Identity     protocol.Identity
	Host         protocol.HostAddress
	Polling      protocol.HostAddress
	Commissioned bool
	Groups       registry.GroupSet
	Scenes       registry.SceneTable
	LISMode      bool
	LISGroup     byte
	SensingFreq  uint8
	PowerOnLevel uint8
	Percentage   uint8
	FadeRate     uint8
	FadeDelay    [2]uint8
	LastCommand  protocol.CommandID
}

// stateFromConfig builds the state for a fresh boot. The identity stays
// zero until the host answers the identity request.
func stateFromConfig(cfg store.PersistentConfig) DeviceState {
	return DeviceState{
		Host:         cfg.Host,
		Polling:      cfg.Polling,
		Commissioned: cfg.Commissioned,
		Groups:       registry.GroupsFrom(cfg.Groups),
		Scenes:       cfg.Scenes,
		LISMode:      cfg.LISMode,
		LISGroup:     cfg.LISGroup,
		SensingFreq:  cfg.SensingFreq,
		PowerOnLevel: cfg.PowerOnLevel,
		Percentage:   cfg.PowerOnLevel,
		FadeRate:     cfg.FadeRate,
		FadeDelay:    cfg.FadeDelay,
		LastCommand:  protocol.NoCommand,
	}
}

func (s DeviceState) persistent(timeout uint8) store.PersistentConfig {
	return store.PersistentConfig{
		SensingFreq:    s.SensingFreq,
		TimeoutMinutes: timeout,
		Host:           s.Host,
		Polling:        s.Polling,
		Commissioned:   s.Commissioned,
		FadeRate:       s.FadeRate,
		FadeDelay:      s.FadeDelay,
		PowerOnLevel:   s.PowerOnLevel,
		Groups:         s.Groups.Slots(),
		Scenes:         s.Scenes,
		LISMode:        s.LISMode,
		LISGroup:       s.LISGroup,
	}
}

// Snapshot is a read-only copy of the node state for the outer surfaces.
type Snapshot struct {
	Name           string `json:"name"`
	Identity       string `json:"identity"`
	Host           string `json:"host"`
	Polling        string `json:"polling"`
	Commissioned   bool   `json:"commissioned"`
	Groups         []int  `json:"groups"`
	Scenes         [5]int `json:"scenes"`
	LISMode        bool   `json:"lis_mode"`
	LISGroup       int    `json:"lis_group"`
	SensingFreq    int    `json:"sensing_freq"`
	TimeoutMinutes int    `json:"timeout_minutes"`
	PowerOnLevel   int    `json:"power_on_level"`
	Percentage     int    `json:"percentage"`
	FadeRate       int    `json:"fade_rate"`
	FadeDelay      [2]int `json:"fade_delay"`
	Duty           int    `json:"duty"`
	TargetDuty     int    `json:"target_duty"`
	LoadOn         bool   `json:"load_on"`
	Ramping        bool   `json:"ramping"`
	Occupancy      string `json:"occupancy"`
	Occupied       bool   `json:"occupied"`
	PresentCount   int    `json:"present_count"`
	LastCommand    string `json:"last_command"`
	Pending        int    `json:"pending_bytes"`
}

// On reports whether the lamp is lit.
func (s Snapshot) On() bool {
	return s.LoadOn && s.Percentage > 0
}

func (n *Node) snapshot() Snapshot {
	st := n.state
	snap := Snapshot{
		Name:           n.cfg.Name,
		Identity:       st.Identity.String(),
		Host:           st.Host.String(),
		Polling:        st.Polling.String(),
		Commissioned:   st.Commissioned,
		Groups:         []int{},
		LISMode:        st.LISMode,
		LISGroup:       int(st.LISGroup),
		SensingFreq:    int(st.SensingFreq),
		TimeoutMinutes: int(n.occ.Timeout()),
		PowerOnLevel:   int(st.PowerOnLevel),
		Percentage:     int(st.Percentage),
		FadeRate:       int(st.FadeRate),
		FadeDelay:      [2]int{int(st.FadeDelay[0]), int(st.FadeDelay[1])},
		Duty:           int(n.dim.Current()),
		TargetDuty:     int(n.dim.Target()),
		LoadOn:         n.dim.LoadOn(),
		Ramping:        n.dim.Ramping(),
		Occupancy:      n.occ.State().String(),
		Occupied:       n.occ.State() != occupancy.Disabled && !n.occ.TimedOut(),
		PresentCount:   int(n.occ.PresentCount()),
		LastCommand:    st.LastCommand.String(),
		Pending:        n.asm.Pending(),
	}
	for _, g := range st.Groups.Slots() {
		if g != registry.Empty {
			snap.Groups = append(snap.Groups, int(g))
		}
	}
	for i, v := range st.Scenes {
		snap.Scenes[i] = int(v)
	}
	return snap
}
