package mqtt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/upswatch/internal/infrastructure/config"
)

func TestTopics(t *testing.T) {
	topics := NewTopics("site/ups/")

	assert.Equal(t, "site/ups", topics.Prefix())
	assert.Equal(t, "site/ups/system/status", topics.SystemStatus())
	assert.Equal(t, "site/ups/state/ups1/battery.charge", topics.Variable("ups1", "battery.charge"))
	assert.Equal(t, "site/ups/status/ups1", topics.DeviceStatus("ups1"))
	assert.Equal(t, "site/ups/event/ups1", topics.DeviceEvent("ups1"))
	assert.Equal(t, "site/ups/command/ups1", topics.DeviceCommand("ups1"))
	assert.Equal(t, "site/ups/command/+", topics.AllDeviceCommands())

	assert.Equal(t, "upswatch", NewTopics("").Prefix())
}

func TestCommandDevice(t *testing.T) {
	topics := NewTopics("upswatch")

	tests := []struct {
		topic  string
		device string
		ok     bool
	}{
		{"upswatch/command/ups1", "ups1", true},
		{"upswatch/command/", "", false},
		{"upswatch/command/ups1/extra", "", false},
		{"other/command/ups1", "", false},
		{"upswatch/state/ups1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			device, ok := topics.CommandDevice(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.device, device)
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker:      config.MQTTBrokerConfig{Host: "broker.local", Port: 8883, TLS: true, ClientID: "upsd-1"},
		Auth:        config.MQTTAuthConfig{Username: "upsd", Password: "secret"},
		TopicPrefix: "ups",
		Reconnect:   config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 30},
	}

	opts := buildClientOptions(cfg)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "ssl://broker.local:8883", opts.Servers[0].String())
	assert.Equal(t, "upsd-1", opts.ClientID)
	assert.Equal(t, "upsd", opts.Username)
	assert.NotNil(t, opts.TLSConfig)
	assert.True(t, opts.AutoReconnect)

	assert.True(t, opts.WillEnabled)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, "ups/system/status", opts.WillTopic)

	var will statusMessage
	require.NoError(t, json.Unmarshal(opts.WillPayload, &will))
	assert.Equal(t, "offline", will.Status)
	assert.Equal(t, "unexpected_disconnect", will.Reason)
}

func TestDisconnectedClient(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)

	assert.ErrorIs(t, c.Publish("", nil, 0, false), ErrInvalidTopic)
	assert.ErrorIs(t, c.Publish("t", nil, 3, false), ErrInvalidQoS)
	assert.ErrorIs(t, c.Publish("t", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed)
	assert.ErrorIs(t, c.Publish("t", []byte("x"), 1, false), ErrNotConnected)

	assert.ErrorIs(t, c.Subscribe("", 0, handler), ErrInvalidTopic)
	assert.ErrorIs(t, c.Subscribe("t", 3, handler), ErrInvalidQoS)
	assert.ErrorIs(t, c.Subscribe("t", 0, nil), ErrSubscribeFailed)
	assert.ErrorIs(t, c.Subscribe("t", 0, handler), ErrNotConnected)
	assert.ErrorIs(t, c.Unsubscribe("t"), ErrNotConnected)
	assert.Zero(t, c.SubscriptionCount())

	assert.NoError(t, c.Close())
}

func TestHealthCheck_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &Client{}
	assert.ErrorIs(t, c.HealthCheck(ctx), context.Canceled)
}
