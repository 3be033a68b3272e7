package influxdb

import (
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementVariable = "ups_variable"
	MeasurementStatus   = "ups_status"
	MeasurementEvent    = "ups_event"
)

// WriteVariable records one variable reading. Numeric values (battery.charge,
// input.voltage) land in the float field "value" so they can be graphed;
// anything else (ups.status, ups.model) goes to the string field "text".
func (c *Client) WriteVariable(device, name, value string, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(variablePoint(device, name, value, ts))
}

// WriteStatus records a device's availability and its ups.status flags.
func (c *Client) WriteStatus(device string, connected, stale bool, status string, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statusPoint(device, connected, stale, status, ts))
}

// WriteEvent records a daemon event that has no numeric reading, such as a
// forced shutdown or a driver disconnect.
func (c *Client) WriteEvent(device, kind, detail string, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementEvent,
		map[string]string{"device": device, "kind": kind},
		map[string]any{"detail": detail},
		ts))
}

func variablePoint(device, name, value string, ts time.Time) *write.Point {
	fields := map[string]any{}
	if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
		fields["value"] = f
	} else {
		fields["text"] = value
	}
	return write.NewPoint(MeasurementVariable,
		map[string]string{"device": device, "variable": name},
		fields, ts)
}

func statusPoint(device string, connected, stale bool, status string, ts time.Time) *write.Point {
	fields := map[string]any{
		"connected": connected,
		"stale":     stale,
		"status":    status,
	}
	for _, flag := range strings.Fields(status) {
		switch strings.ToUpper(flag) {
		case "OL":
			fields["on_line"] = true
		case "OB":
			fields["on_battery"] = true
		case "LB":
			fields["low_battery"] = true
		case "FSD":
			fields["forced_shutdown"] = true
		}
	}
	return write.NewPoint(MeasurementStatus, map[string]string{"device": device}, fields, ts)
}
