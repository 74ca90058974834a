package registry

import "testing"

func TestGroupSetCircularInsert(t *testing.T) {
	g := NewGroupSet()
	for _, a := range []byte{1, 2, 3, 4, 5, 6} {
		g.Add(a)
	}
	want := [Slots]byte{6, 2, 3, 4, 5}
	if got := g.Slots(); got != want {
		t.Errorf("slots = %v, want %v", got, want)
	}
	if g.Contains(1) {
		t.Error("overwritten group 1 still a member")
	}
	if !g.Contains(6) {
		t.Error("group 6 not a member")
	}
}

func TestGroupSetRemoveAndCount(t *testing.T) {
	g := NewGroupSet()
	g.Add(7)
	g.Add(9)
	g.Add(7)
	if g.Count() != 3 {
		t.Errorf("count = %d, want 3", g.Count())
	}
	g.Remove(7)
	if g.Count() != 1 || g.Contains(7) {
		t.Errorf("after remove: count = %d, contains 7 = %v", g.Count(), g.Contains(7))
	}
	if g.Contains(Empty) {
		t.Error("empty slot counted as membership")
	}
}

func TestGroupsFromRestartsAtSlotZero(t *testing.T) {
	g := GroupsFrom([Slots]byte{1, 2, Empty, Empty, Empty})
	g.Add(3)
	if s, _ := g.Slot(0); s != 3 {
		t.Errorf("slot 0 = %d, want 3", s)
	}
	if _, ok := g.Slot(5); ok {
		t.Error("slot 5 should be out of range")
	}
}

func TestSceneTable(t *testing.T) {
	s := NewSceneTable()
	if v, ok := s.Get(1); !ok || v != SceneUnset {
		t.Errorf("Get(1) = %d, %v", v, ok)
	}
	if !s.Set(5, 42) {
		t.Fatal("Set(5) failed")
	}
	if v, _ := s.Get(5); v != 42 {
		t.Errorf("Get(5) = %d, want 42", v)
	}
	if s.Set(0, 1) || s.Set(6, 1) {
		t.Error("out of range scene accepted")
	}
	s.Clear(5)
	if v, _ := s.Get(5); v != SceneUnset {
		t.Errorf("after clear = %d", v)
	}
}
