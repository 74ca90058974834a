//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"lightnode/internal/node"
	"lightnode/internal/protocol"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
}

// Bridge publishes node state and events to MQTT and accepts commands,
// with Home Assistant autodiscovery.
type Bridge struct {
	client pahomqtt.Client
	node   *node.Node
	base   string
	logger *slog.Logger
	unsub  func()
	ctx    context.Context
	cancel context.CancelFunc

	// refresh coalesces state republish requests from the node loop.
	refresh chan struct{}
	done    chan struct{}
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(n *node.Node, cfg Config, logger *slog.Logger) (*Bridge, error) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		node:    n,
		base:    cfg.TopicPrefix + "/" + topicName(n.Name()),
		logger:  logger.With("component", "mqtt"),
		ctx:     ctx,
		cancel:  cancel,
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "lightnode-" + topicName(n.Name())
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(b.availabilityTopic(), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publish(b.availabilityTopic(), []byte("online"), true)
			b.publishDiscovery()
			b.subscribeCommands()
			b.requestRefresh()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		cancel()
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to node events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.node.Events().OnAll(b.handleEvent)
	go b.stateLoop()
	b.logger.Info("MQTT bridge started", "topic", b.base)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
		b.cancel()
		<-b.done
	}
	b.publish(b.availabilityTopic(), []byte("offline"), true)
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) availabilityTopic() string { return b.base + "/availability" }
func (b *Bridge) stateTopic() string { return b.base + "/state" }

// handleEvent runs on the node loop and must not call back into the node.
func (b *Bridge) handleEvent(event node.Event) {
	b.publish(b.base+"/event/"+event.Type, mustJSON(event.Data), false)
	if changesState(event.Type) {
		b.requestRefresh()
	}
}

func changesState(typ string) bool {
	switch typ {
	case node.EventDropped, node.EventIdentity:
		return false
	}
	return true
}

func (b *Bridge) requestRefresh() {
	select {
	case b.refresh <- struct{}{}:
	default:
	}
}

func (b *Bridge) stateLoop() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.refresh:
			b.publishState()
		}
	}
}

func (b *Bridge) publishState() {
	ctx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
	defer cancel()
	snap, err := b.node.Snapshot(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			b.logger.Warn("state snapshot", "err", err)
		}
		return
	}
	b.publish(b.stateTopic(), mustJSON(statePayload(snap)), true)
}

func (b *Bridge) publishDiscovery() {
	for _, msg := range buildDiscovery(b.node.Name(), b.base) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.logger.Info("published HA discovery", "name", b.node.Name())
}

func (b *Bridge) subscribeCommands() {
	b.client.Subscribe(b.base+"/set", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		frames, err := framesForSet(msg.Payload())
		if err != nil {
			b.logger.Warn("invalid set payload", "err", err)
			return
		}
		b.submit(frames...)
	})
	b.client.Subscribe(b.base+"/command", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		f, err := parseCommand(msg.Payload())
		if err != nil {
			b.logger.Warn("invalid command payload", "err", err)
			return
		}
		b.submit(f)
	})
}

func (b *Bridge) submit(frames ...protocol.Frame) {
	for _, f := range frames {
		if err := b.node.Submit(f); err != nil {
			b.logger.Warn("submit command", "frame", f.String(), "err", err)
			return
		}
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// statePayload is the retained state document.
func statePayload(s node.Snapshot) map[string]any {
	state := "OFF"
	if s.On() {
		state = "ON"
	}
	return map[string]any{
		"state":         state,
		"brightness":    s.Percentage,
		"occupancy":     s.Occupied,
		"sensor":        s.Occupancy,
		"present_count": s.PresentCount,
		"groups":        s.Groups,
		"identity":      s.Identity,
		"commissioned":  s.Commissioned,
	}
}

// setCommand is the Home Assistant JSON light schema subset we accept.
type setCommand struct {
	State      string   `json:"state"`
	Brightness *float64 `json:"brightness"`
}

// framesForSet translates a light command into wire frames.
func framesForSet(payload []byte) ([]protocol.Frame, error) {
	var cmd setCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, fmt.Errorf("decode set payload: %w", err)
	}

	var bodies []string
	switch strings.ToUpper(cmd.State) {
	case "OFF":
		bodies = append(bodies, "ADLADOF")
	case "ON":
		if cmd.Brightness == nil {
			bodies = append(bodies, "ADLADON")
		}
	case "":
	default:
		return nil, fmt.Errorf("unknown state %q", cmd.State)
	}
	if cmd.Brightness != nil && strings.ToUpper(cmd.State) != "OFF" {
		level := *cmd.Brightness
		if level < 0 {
			level = 0
		}
		if level > 99 {
			level = 99
		}
		bodies = append(bodies, fmt.Sprintf("ADSPL%02d", int(level)))
	}
	if len(bodies) == 0 {
		return nil, fmt.Errorf("set payload has neither state nor brightness")
	}

	frames := make([]protocol.Frame, 0, len(bodies))
	for _, body := range bodies {
		f, err := protocol.NewFrame(body, protocol.Broadcast)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// rawCommand is the JSON form of a command topic message.
type rawCommand struct {
	Command string `json:"command"`
	Address *int   `json:"address"`
}

// parseCommand accepts a bare 7-character body or {"command","address"}.
func parseCommand(payload []byte) (protocol.Frame, error) {
	text := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(text, "{") {
		return protocol.NewFrame(text, protocol.Broadcast)
	}
	var cmd rawCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return protocol.Frame{}, fmt.Errorf("decode command payload: %w", err)
	}
	addr := int(protocol.Broadcast)
	if cmd.Address != nil {
		addr = *cmd.Address
	}
	if addr < 0 || addr > 255 {
		return protocol.Frame{}, fmt.Errorf("address %d out of range", addr)
	}
	return protocol.NewFrame(cmd.Command, byte(addr))
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
