package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/upswatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/upswatch/internal/upsd"
)

// commandTimeout bounds a daemon call made on behalf of an MQTT message.
const commandTimeout = 5 * time.Second

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Snapshotter is the part of upsd.Daemon used to republish retained state.
type Snapshotter interface {
	Devices(ctx context.Context) ([]upsd.DeviceInfo, error)
	Device(ctx context.Context, name string) (upsd.DeviceInfo, error)
}

// Device availability values published on the status topic.
const (
	StatusConnected    = "connected"
	StatusOK           = "ok"
	StatusStale        = "stale"
	StatusDisconnected = "disconnected"
	StatusFSD          = "fsd"
)

// MQTTSink mirrors device state onto retained topics and the event stream
// onto a non-retained topic per device.
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger Logger
}

// NewMQTTSink creates a sink publishing through pub.
func NewMQTTSink(pub Publisher, topics mqtt.Topics, qos byte, logger Logger) *MQTTSink {
	return &MQTTSink{pub: pub, topics: topics, qos: qos, logger: orNoop(logger)}
}

// HandleEvent implements upsd.Sink.
func (s *MQTTSink) HandleEvent(ev upsd.Event) {
	switch ev.Kind {
	case upsd.EventVariableSet:
		s.publish(s.topics.Variable(ev.Device, ev.Name), []byte(ev.Value), true)
	case upsd.EventVariableDeleted:
		s.publish(s.topics.Variable(ev.Device, ev.Name), nil, true)
	case upsd.EventDeviceConnected:
		s.publish(s.topics.DeviceStatus(ev.Device), []byte(StatusConnected), true)
	case upsd.EventDeviceOK:
		s.publish(s.topics.DeviceStatus(ev.Device), []byte(StatusOK), true)
	case upsd.EventDeviceStale:
		s.publish(s.topics.DeviceStatus(ev.Device), []byte(StatusStale), true)
	case upsd.EventDeviceDisconnected:
		s.publish(s.topics.DeviceStatus(ev.Device), []byte(StatusDisconnected), true)
	case upsd.EventForcedShutdown:
		s.publish(s.topics.DeviceStatus(ev.Device), []byte(StatusFSD), true)
	case upsd.EventDeviceRemoved:
		s.publish(s.topics.DeviceStatus(ev.Device), nil, true)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("marshalling event", "kind", ev.Kind, "error", err)
		return
	}
	s.publish(s.topics.DeviceEvent(ev.Device), payload, false)
}

func (s *MQTTSink) publish(topic string, payload []byte, retained bool) {
	if err := s.pub.Publish(topic, payload, s.qos, retained); err != nil {
		s.logger.Debug("MQTT publish failed", "topic", topic, "error", err)
	}
}

// Republish writes every device's variables and status to the retained
// topics. upsd calls it after each broker (re)connect, since a clean
// session may have lost retained messages published while offline.
func (s *MQTTSink) Republish(ctx context.Context, src Snapshotter) error {
	devices, err := src.Devices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	for _, summary := range devices {
		dev, err := src.Device(ctx, summary.Name)
		if errors.Is(err, upsd.ErrUnknownDevice) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", summary.Name, err)
		}

		s.publish(s.topics.DeviceStatus(dev.Name), []byte(deviceStatus(dev)), true)
		for _, v := range dev.Variables {
			s.publish(s.topics.Variable(dev.Name, v.Name), []byte(v.Value), true)
		}
	}
	return nil
}

func deviceStatus(dev upsd.DeviceInfo) string {
	switch {
	case dev.FSD:
		return StatusFSD
	case !dev.Connected:
		return StatusDisconnected
	case dev.Stale:
		return StatusStale
	default:
		return StatusOK
	}
}

// Controller is the part of upsd.Daemon that MQTT commands drive.
type Controller interface {
	InstCmd(ctx context.Context, device, cmd, extra string) error
	SetVar(ctx context.Context, device, name, value string) error
}

// Command is the JSON body accepted on a device command topic. Exactly one
// of InstCmd or Set must be present.
//
//	{"instcmd": "beeper.off"}
//	{"instcmd": "load.off.delay", "extra": "30"}
//	{"set": "input.transfer.low", "value": "190"}
type Command struct {
	InstCmd string `json:"instcmd,omitempty"`
	Extra   string `json:"extra,omitempty"`
	Set     string `json:"set,omitempty"`
	Value   string `json:"value,omitempty"`
}

// ErrBadCommand is returned for a command message that cannot be acted on.
var ErrBadCommand = errors.New("sinks: malformed command message")

// CommandHandler executes MQTT command messages against the daemon.
type CommandHandler struct {
	ctl    Controller
	topics mqtt.Topics
	logger Logger
}

// NewCommandHandler creates a handler for topics.AllDeviceCommands().
func NewCommandHandler(ctl Controller, topics mqtt.Topics, logger Logger) *CommandHandler {
	return &CommandHandler{ctl: ctl, topics: topics, logger: orNoop(logger)}
}

// Handle is an mqtt.MessageHandler.
func (h *CommandHandler) Handle(topic string, payload []byte) error {
	device, ok := h.topics.CommandDevice(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrBadCommand, topic)
	}

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrBadCommand, err)
	}
	cmd.InstCmd = strings.TrimSpace(cmd.InstCmd)
	cmd.Set = strings.TrimSpace(cmd.Set)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch {
	case cmd.InstCmd != "" && cmd.Set == "":
		h.logger.Info("MQTT instant command", "device", device, "command", cmd.InstCmd)
		return h.ctl.InstCmd(ctx, device, cmd.InstCmd, cmd.Extra)
	case cmd.Set != "" && cmd.InstCmd == "":
		h.logger.Info("MQTT set variable", "device", device, "variable", cmd.Set)
		return h.ctl.SetVar(ctx, device, cmd.Set, cmd.Value)
	default:
		return fmt.Errorf("%w: need exactly one of instcmd or set", ErrBadCommand)
	}
}
