// Package registry holds the group membership slots and scene presets.
package registry

// Slots is the number of group and scene entries.
const Slots = 5

// Empty marks an unused group slot.
const Empty byte = 0xFF

// SceneUnset is the level stored in a scene that was never captured.
const SceneUnset uint8 = 99

// GroupSet is a ring of group addresses the node answers to in addition
// to broadcast. New groups overwrite the oldest slot once all are used.
type GroupSet struct {
	slots [Slots]byte
	next  int
}

// NewGroupSet returns a set with every slot empty.
func NewGroupSet() GroupSet {
	return GroupsFrom([Slots]byte{Empty, Empty, Empty, Empty, Empty})
}

// GroupsFrom restores persisted slots. Insertion restarts at slot 0.
func GroupsFrom(slots [Slots]byte) GroupSet {
	return GroupSet{slots: slots}
}

// Add stores addr in the next slot.
func (g *GroupSet) Add(addr byte) {
	g.slots[g.next] = addr
	g.next = (g.next + 1) % Slots
}

// Remove empties every slot holding addr.
func (g *GroupSet) Remove(addr byte) {
	for i := range g.slots {
		if g.slots[i] == addr {
			g.slots[i] = Empty
		}
	}
}

// Reset empties all slots.
func (g *GroupSet) Reset() {
	*g = NewGroupSet()
}

// Contains reports whether addr occupies a slot.
func (g GroupSet) Contains(addr byte) bool {
	if addr == Empty {
		return false
	}
	for _, s := range g.slots {
		if s == addr {
			return true
		}
	}
	return false
}

// Count returns the number of occupied slots.
func (g GroupSet) Count() int {
	n := 0
	for _, s := range g.slots {
		if s != Empty {
			n++
		}
	}
	return n
}

// Slot returns the address in slot i (0-based).
func (g GroupSet) Slot(i int) (byte, bool) {
	if i < 0 || i >= Slots {
		return 0, false
	}
	return g.slots[i], true
}

// Slots returns a copy of the raw slots.
func (g GroupSet) Slots() [Slots]byte {
	return g.slots
}

// SceneTable holds five preset levels addressed 1 to 5.
type SceneTable [Slots]uint8

// NewSceneTable returns a table with every scene unset.
func NewSceneTable() SceneTable {
	return SceneTable{SceneUnset, SceneUnset, SceneUnset, SceneUnset, SceneUnset}
}

// Set captures level into scene n.
func (s *SceneTable) Set(n int, level uint8) bool {
	if n < 1 || n > Slots {
		return false
	}
	s[n-1] = level
	return true
}

// Get returns the level of scene n.
func (s SceneTable) Get(n int) (uint8, bool) {
	if n < 1 || n > Slots {
		return 0, false
	}
	return s[n-1], true
}

// Clear unsets scene n.
func (s *SceneTable) Clear(n int) bool {
	return s.Set(n, SceneUnset)
}
