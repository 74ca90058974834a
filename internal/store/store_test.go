package store

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"lightnode/internal/protocol"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestBolt(t *testing.T) *BoltFlash {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	f, err := NewBoltFlash(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func sampleConfig() PersistentConfig {
	c := Defaults()
	c.SensingFreq = 20
	c.TimeoutMinutes = 5
	c.Host = protocol.HostAddress{'A', 'B', '1', '2'}
	c.Polling = protocol.HostAddress{'9', '8', '7', '6'}
	c.Commissioned = true
	c.FadeRate = 4
	c.FadeDelay = [2]uint8{1, 5}
	c.PowerOnLevel = 60
	c.Groups = [5]byte{3, 4, 0xFF, 0xFF, 0xFF}
	c.Scenes = [5]uint8{10, 20, 30, 99, 99}
	c.LISMode = true
	c.LISGroup = 7
	return c
}

func flashes(t *testing.T) map[string]Flash {
	return map[string]Flash{
		"memory": NewMemFlash(),
		"bolt":   newTestBolt(t),
	}
}

func TestErasedBlockLoadsDefaults(t *testing.T) {
	for name, f := range flashes(t) {
		t.Run(name, func(t *testing.T) {
			s := NewConfigStore(f, newTestLogger())
			got, err := s.Load()
			if err != nil {
				t.Fatal(err)
			}
			if got != Defaults() {
				t.Errorf("Load = %+v, want defaults", got)
			}
		})
	}
}

func TestCommitLoadRoundTrip(t *testing.T) {
	for name, f := range flashes(t) {
		t.Run(name, func(t *testing.T) {
			s := NewConfigStore(f, newTestLogger())
			want := sampleConfig()
			if err := s.Commit(want); err != nil {
				t.Fatal(err)
			}
			got, err := s.Load()
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Errorf("Load = %+v, want %+v", got, want)
			}

			// A second commit must not be masked by bits cleared by the first.
			want.Commissioned = false
			want.PowerOnLevel = 99
			if err := s.Commit(want); err != nil {
				t.Fatal(err)
			}
			if got, _ := s.Load(); got != want {
				t.Errorf("after recommit = %+v, want %+v", got, want)
			}
		})
	}
}

func TestFactoryResetThenLoad(t *testing.T) {
	for name, f := range flashes(t) {
		t.Run(name, func(t *testing.T) {
			s := NewConfigStore(f, newTestLogger())
			if err := s.Commit(sampleConfig()); err != nil {
				t.Fatal(err)
			}
			if _, err := s.FactoryReset(); err != nil {
				t.Fatal(err)
			}
			got, err := s.Load()
			if err != nil {
				t.Fatal(err)
			}
			if got != Defaults() {
				t.Errorf("Load = %+v, want defaults", got)
			}
		})
	}
}

func TestCommitErasesOnceAndWritesOnce(t *testing.T) {
	f := NewMemFlash()
	s := NewConfigStore(f, newTestLogger())
	if err := s.Commit(sampleConfig()); err != nil {
		t.Fatal(err)
	}
	if erases, writes := f.Counts(); erases != 1 || writes != 1 {
		t.Errorf("erases = %d, writes = %d, want 1, 1", erases, writes)
	}
}

func TestDecodeZeroValuesFallBack(t *testing.T) {
	block := Encode(Defaults())
	block[FieldTimeout.Offset] = 0
	block[FieldFadeRate.Offset] = 0
	block[FieldFadeDelay.At(0)] = 0
	block[FieldFadeDelay.At(1)] = 0

	got := Decode(block)
	if got.TimeoutMinutes != DefaultTimeout {
		t.Errorf("timeout = %d, want %d", got.TimeoutMinutes, DefaultTimeout)
	}
	if got.FadeRate != DefaultFadeRate {
		t.Errorf("fade rate = %d, want %d", got.FadeRate, DefaultFadeRate)
	}
	if got.FadeDelay != DefaultFadeDelay {
		t.Errorf("fade delay = %v, want %v", got.FadeDelay, DefaultFadeDelay)
	}
	if got.FadeDelayUnits() != 300 {
		t.Errorf("fade delay units = %d, want 300", got.FadeDelayUnits())
	}
}

func TestLayoutFitsBlock(t *testing.T) {
	used := make(map[int]string)
	for _, f := range Layout {
		for i := 0; i < f.Count; i++ {
			off := f.At(i)
			if off < 0 || off >= BlockSize {
				t.Errorf("%s slot %d at %#x outside block", f.Name, i, off)
			}
			if other, ok := used[off]; ok {
				t.Errorf("%s overlaps %s at %#x", f.Name, other, off)
			}
			used[off] = f.Name
		}
	}
}

func TestFlashBounds(t *testing.T) {
	for name, f := range flashes(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := f.Read(BlockSize); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Read past end: err = %v", err)
			}
			if err := f.Write(BlockSize-1, []byte{1, 2}); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Write past end: err = %v", err)
			}
		})
	}
}

func TestBoltWear(t *testing.T) {
	f := newTestBolt(t)
	s := NewConfigStore(f, newTestLogger())
	for i := 0; i < 3; i++ {
		if err := s.Commit(Defaults()); err != nil {
			t.Fatal(err)
		}
	}
	w, err := f.Wear()
	if err != nil {
		t.Fatal(err)
	}
	if w.Erases != 3 {
		t.Errorf("erases = %d, want 3", w.Erases)
	}
	if w.LastErased.IsZero() {
		t.Error("last erased not recorded")
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	f, err := NewBoltFlash(path)
	if err != nil {
		t.Fatal(err)
	}
	want := sampleConfig()
	if err := NewConfigStore(f, newTestLogger()).Commit(want); err != nil {
		t.Fatal(err)
	}
	f.Close()

	f, err = NewBoltFlash(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := NewConfigStore(f, newTestLogger()).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}
