package dimmer

import (
	"log/slog"
	"os"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
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

func TestDutyFor(t *testing.T) {
	tests := []struct {
		p    uint8
		want uint16
	}{
		{0, 3300},
		{1, 3276},
		{10, 3060},
		{11, 3085},
		{12, 3084},
		{13, 3080},
		{14, 3075},
		{15, 3070},
		{50, 2230},
		{66, 1846},
		{67, 1780},
		{98, 1036},
		{99, 0},
	}
	for _, tt := range tests {
		got, ok := DutyFor(tt.p)
		if !ok || got != tt.want {
			t.Errorf("DutyFor(%d) = %d, %v, want %d", tt.p, got, ok, tt.want)
		}
	}
	if _, ok := DutyFor(100); ok {
		t.Error("DutyFor(100) should be rejected")
	}
	for p := uint8(0); p <= MaxLevel; p++ {
		d, _ := DutyFor(p)
		if IsOff(d) != (p == 0) {
			t.Errorf("IsOff(DutyFor(%d)) = %v", p, IsOff(d))
		}
		if d > MaxDuty {
			t.Errorf("DutyFor(%d) = %d exceeds max", p, d)
		}
	}
}

func runRamp(t *testing.T, e *Engine) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		if e.Step() {
			return
		}
	}
	t.Fatal("ramp did not finish")
}

func TestRampInvariant(t *testing.T) {
	act := &recordingActuator{}
	e := New(act, newTestLogger())
	e.SetFadeRate(7)
	e.Jump(OffDuty)
	act.duties = nil

	if !e.SetLevel(99) {
		t.Fatal("SetLevel should start a ramp")
	}
	runRamp(t, e)

	if e.Current() != e.Target() || e.Current() != FullDuty {
		t.Fatalf("current = %d, target = %d", e.Current(), e.Target())
	}
	prev := OffDuty
	for i, d := range act.duties {
		diff := int(prev) - int(d)
		if diff < 0 {
			diff = -diff
		}
		if diff > 7 {
			t.Fatalf("step %d moved %d units", i, diff)
		}
		prev = d
	}
}

func TestSetLevelIdempotent(t *testing.T) {
	e := New(&recordingActuator{}, newTestLogger())
	e.SetLevel(50)
	runRamp(t, e)
	target := e.Target()

	if e.SetLevel(50) {
		t.Error("second SetLevel(50) started a ramp")
	}
	if e.Target() != target {
		t.Errorf("target = %d, want %d", e.Target(), target)
	}
}

func TestSetLevelRoundTrip(t *testing.T) {
	e := New(&recordingActuator{}, newTestLogger())
	e.SetLevel(0)
	first := e.Target()
	e.SetLevel(99)
	e.SetLevel(0)
	if e.Target() != first {
		t.Errorf("target = %d, want %d", e.Target(), first)
	}
}

func TestRampToOffDeenergizesAtEnd(t *testing.T) {
	act := &recordingActuator{}
	e := New(act, newTestLogger())
	e.SetFadeRate(100)
	e.SetLevel(0)

	for !e.Step() {
		if !e.LoadOn() {
			t.Fatal("load switched off before ramp finished")
		}
	}
	if e.LoadOn() {
		t.Error("load still on after ramp to 0%")
	}
	if !e.Off() {
		t.Error("Off() = false after ramp to 0%")
	}
}

func TestRampSteersToNewTarget(t *testing.T) {
	e := New(&recordingActuator{}, newTestLogger())
	e.SetFadeRate(10)
	e.SetLevel(0)
	e.Step()
	if e.SetLevel(99) {
		t.Error("retargeting during a ramp should not start another ramp")
	}
	runRamp(t, e)
	if e.Current() != FullDuty {
		t.Errorf("current = %d, want %d", e.Current(), FullDuty)
	}
}

func TestZeroFadeRateStillProgresses(t *testing.T) {
	e := New(&recordingActuator{}, newTestLogger())
	e.SetFadeRate(0)
	e.SetLevel(98)
	runRamp(t, e)
	if e.Current() != 1036 {
		t.Errorf("current = %d, want 1036", e.Current())
	}
}
