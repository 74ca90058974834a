//go:build !no_telemetry

package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"lightnode/internal/node"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written for node events.
const (
	MeasurementLevel     = "light_level"
	MeasurementOccupancy = "occupancy"
	MeasurementCommand   = "commands"
)

// PointWriter accepts points for batching. *Client implements it.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// Recorder converts node events into points. Events are queued so the
// node loop never waits on the writer.
type Recorder struct {
	name   string
	out    PointWriter
	logger *slog.Logger
	now    func() time.Time

	queue   chan node.Event
	unsub   func()
	stop    chan struct{}
	done    chan struct{}
	started bool
	once    sync.Once
}

// NewRecorder creates a recorder tagging every point with the node name.
func NewRecorder(name string, out PointWriter, logger *slog.Logger) *Recorder {
	return &Recorder{
		name:   name,
		out:    out,
		logger: logger.With("component", "telemetry"),
		now:    time.Now,
		queue:  make(chan node.Event, 256),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the bus and begins writing.
func (r *Recorder) Start(events *node.EventBus) {
	r.started = true
	r.unsub = events.OnAll(func(ev node.Event) {
		select {
		case r.queue <- ev:
		default:
			r.logger.Warn("telemetry queue full, dropping event", "event", ev.Type)
		}
	})
	go r.run()
}

// Stop unsubscribes, writes the events still queued and returns.
func (r *Recorder) Stop() {
	r.once.Do(func() {
		if r.unsub != nil {
			r.unsub()
		}
		close(r.stop)
		if r.started {
			<-r.done
		}
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case ev := <-r.queue:
			r.record(ev)
		case <-r.stop:
			for {
				select {
				case ev := <-r.queue:
					r.record(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) record(ev node.Event) {
	if p, ok := pointFor(r.name, ev, r.now()); ok {
		r.out.WritePoint(p)
	}
}

// pointFor maps a node event to a point. Events without a measurement
// return false.
func pointFor(name string, ev node.Event, at time.Time) (*write.Point, bool) {
	data, _ := ev.Data.(map[string]interface{})
	tags := map[string]string{"node": name}

	var (
		measurement string
		fields      = make(map[string]interface{})
	)
	switch ev.Type {
	case node.EventLevel:
		measurement = MeasurementLevel
		copyFields(fields, data, "percentage", "duty")
	case node.EventLoad:
		measurement = MeasurementLevel
		copyFields(fields, data, "on")
		if on, ok := fields["on"]; ok {
			delete(fields, "on")
			fields["load"] = on
		}
	case node.EventPresence:
		measurement = MeasurementOccupancy
		copyFields(fields, data, "present_count")
	case node.EventMotion:
		measurement = MeasurementOccupancy
		fields["motion"] = 1
	case node.EventTimeout:
		measurement = MeasurementOccupancy
		fields["timeout"] = 1
		copyFields(fields, data, "minutes")
	case node.EventCommand:
		measurement = MeasurementCommand
		cmd, _ := data["command"].(string)
		if cmd == "" {
			return nil, false
		}
		tags["command"] = cmd
		fields["count"] = 1
	default:
		return nil, false
	}

	if len(fields) == 0 {
		return nil, false
	}
	return write.NewPoint(measurement, tags, fields, at), true
}

func copyFields(dst, src map[string]interface{}, keys ...string) {
	for _, k := range keys {
		if v, ok := src[k]; ok {
			dst[k] = v
		}
	}
}
