//go:build !no_telemetry

package telemetry

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"lightnode/internal/node"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (w *recordingWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.points)
}

func tagsOf(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fieldsOf(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestPointFor(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		ev          node.Event
		measurement string
		fields      map[string]interface{}
		tags        map[string]string
	}{
		{
			name:        "level",
			ev:          node.Event{Type: node.EventLevel, Data: map[string]interface{}{"percentage": 50, "duty": 2230}},
			measurement: MeasurementLevel,
			fields:      map[string]interface{}{"percentage": int64(50), "duty": int64(2230)},
		},
		{
			name:        "load",
			ev:          node.Event{Type: node.EventLoad, Data: map[string]interface{}{"on": true}},
			measurement: MeasurementLevel,
			fields:      map[string]interface{}{"load": true},
		},
		{
			name:        "presence",
			ev:          node.Event{Type: node.EventPresence, Data: map[string]interface{}{"present_count": 3}},
			measurement: MeasurementOccupancy,
			fields:      map[string]interface{}{"present_count": int64(3)},
		},
		{
			name:        "motion",
			ev:          node.Event{Type: node.EventMotion, Data: map[string]interface{}{"state": "armed"}},
			measurement: MeasurementOccupancy,
			fields:      map[string]interface{}{"motion": int64(1)},
		},
		{
			name:        "timeout",
			ev:          node.Event{Type: node.EventTimeout, Data: map[string]interface{}{"minutes": 15}},
			measurement: MeasurementOccupancy,
			fields:      map[string]interface{}{"timeout": int64(1), "minutes": int64(15)},
		},
		{
			name:        "command",
			ev:          node.Event{Type: node.EventCommand, Data: map[string]interface{}{"command": "identify", "dest": 254}},
			measurement: MeasurementCommand,
			fields:      map[string]interface{}{"count": int64(1)},
			tags:        map[string]string{"command": "identify"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := pointFor("hall", tt.ev, at)
			if !ok {
				t.Fatal("expected a point")
			}
			if p.Name() != tt.measurement {
				t.Errorf("measurement = %q, want %q", p.Name(), tt.measurement)
			}
			if !p.Time().Equal(at) {
				t.Errorf("time = %v, want %v", p.Time(), at)
			}
			tags := tagsOf(p)
			if tags["node"] != "hall" {
				t.Errorf("node tag = %q", tags["node"])
			}
			for k, v := range tt.tags {
				if tags[k] != v {
					t.Errorf("tag %s = %q, want %q", k, tags[k], v)
				}
			}
			fields := fieldsOf(p)
			if len(fields) != len(tt.fields) {
				t.Errorf("fields = %v, want %v", fields, tt.fields)
			}
			for k, v := range tt.fields {
				if fields[k] != v {
					t.Errorf("field %s = %v (%T), want %v", k, fields[k], fields[k], v)
				}
			}
		})
	}
}

func TestPointForIgnoredEvents(t *testing.T) {
	for _, ev := range []node.Event{
		{Type: node.EventDropped, Data: map[string]interface{}{"reason": "unknown"}},
		{Type: node.EventIdentity, Data: map[string]interface{}{"identity": "ABCD"}},
		{Type: node.EventCommand, Data: map[string]interface{}{}},
		{Type: node.EventLevel, Data: map[string]interface{}{}},
		{Type: node.EventLevel},
	} {
		if _, ok := pointFor("hall", ev, time.Now()); ok {
			t.Errorf("%s %v: expected no point", ev.Type, ev.Data)
		}
	}
}

func TestRecorderWritesBusEvents(t *testing.T) {
	bus := node.NewEventBus(testLogger())
	out := &recordingWriter{}
	r := NewRecorder("hall", out, testLogger())
	r.Start(bus)

	bus.Emit(node.Event{Type: node.EventLevel, Data: map[string]interface{}{"percentage": 10, "duty": 2900}})
	bus.Emit(node.Event{Type: node.EventDropped, Data: map[string]interface{}{"reason": "duplicate"}})
	bus.Emit(node.Event{Type: node.EventMotion, Data: map[string]interface{}{}})
	r.Stop()

	if n := out.count(); n != 2 {
		t.Errorf("points = %d, want 2", n)
	}

	bus.Emit(node.Event{Type: node.EventMotion, Data: map[string]interface{}{}})
	if n := out.count(); n != 2 {
		t.Errorf("points after stop = %d, want 2", n)
	}
	r.Stop()
}

func TestConnectDisabled(t *testing.T) {
	c, err := Connect(Config{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
	if c != nil {
		t.Error("client should be nil when disabled")
	}
}

func TestConnectUnreachable(t *testing.T) {
	_, err := Connect(Config{Enabled: true, URL: "http://127.0.0.1:1", Token: "t", Org: "o", Bucket: "b"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("err = %v, want ErrConnectionFailed", err)
	}
}
