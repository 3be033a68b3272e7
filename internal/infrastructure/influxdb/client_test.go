package influxdb

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/upswatch/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v2/write" {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		f.mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func startFake(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "upswatch",
		Bucket:        "ups",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:1"})
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestWriteAndFlush(t *testing.T) {
	fake, cfg := startFake(t)

	c, err := Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, c.HealthCheck(context.Background()))

	ts := time.Unix(1700000000, 0)
	c.WriteVariable("ups1", "battery.charge", "87", ts)
	c.WriteVariable("ups1", "ups.status", "OL CHRG", ts)
	c.WriteStatus("ups1", true, false, "OB LB", ts)
	c.WriteEvent("ups1", "forced_shutdown", "admin", ts)
	c.Flush()

	require.Eventually(t, func() bool { return len(fake.written()) == 4 }, 5*time.Second, 20*time.Millisecond)
	lines := strings.Join(fake.written(), "\n")
	assert.Contains(t, lines, "ups_variable,device=ups1,variable=battery.charge value=87 ")
	assert.Contains(t, lines, `ups_variable,device=ups1,variable=ups.status text="OL CHRG" `)
	assert.Contains(t, lines, "low_battery=true")
	assert.Contains(t, lines, "ups_event,device=ups1,kind=forced_shutdown")

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)

	// Writes after Close are dropped silently.
	c.WriteVariable("ups1", "battery.charge", "1", ts)
	c.Flush()
	require.NoError(t, c.Close())
}

func fieldsOf(p *write.Point) map[string]any {
	out := map[string]any{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestVariablePoint(t *testing.T) {
	p := variablePoint("ups1", "input.voltage", " 230.5 ", time.Now())
	assert.Equal(t, MeasurementVariable, p.Name())
	assert.Equal(t, map[string]any{"value": 230.5}, fieldsOf(p))

	p = variablePoint("ups1", "ups.model", "Smart-UPS 1500", time.Now())
	assert.Equal(t, map[string]any{"text": "Smart-UPS 1500"}, fieldsOf(p))
}

func TestStatusPoint(t *testing.T) {
	fields := fieldsOf(statusPoint("ups1", true, false, "FSD OB LB", time.Now()))
	assert.Equal(t, true, fields["forced_shutdown"])
	assert.Equal(t, true, fields["on_battery"])
	assert.Equal(t, true, fields["low_battery"])
	assert.NotContains(t, fields, "on_line")
	assert.Equal(t, "FSD OB LB", fields["status"])
}
