package sinks

import (
	"time"

	"github.com/nerrad567/upswatch/internal/upsd"
)

// InfluxWriter is the part of influxdb.Client the sink needs.
type InfluxWriter interface {
	WriteVariable(device, name, value string, ts time.Time)
	WriteStatus(device string, connected, stale bool, status string, ts time.Time)
	WriteEvent(device, kind, detail string, ts time.Time)
}

// InfluxSink turns events into time-series points.
type InfluxSink struct {
	w InfluxWriter
}

// NewInfluxSink creates a sink writing through w.
func NewInfluxSink(w InfluxWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// HandleEvent implements upsd.Sink.
func (s *InfluxSink) HandleEvent(ev upsd.Event) {
	switch ev.Kind {
	case upsd.EventVariableSet:
		s.w.WriteVariable(ev.Device, ev.Name, ev.Value, ev.Time)
	case upsd.EventDeviceOK:
		s.w.WriteStatus(ev.Device, true, false, ev.Value, ev.Time)
	case upsd.EventDeviceStale:
		s.w.WriteStatus(ev.Device, true, true, "", ev.Time)
	case upsd.EventDeviceDisconnected:
		s.w.WriteStatus(ev.Device, false, true, "", ev.Time)
		s.w.WriteEvent(ev.Device, string(ev.Kind), "", ev.Time)
	case upsd.EventForcedShutdown:
		s.w.WriteStatus(ev.Device, true, false, ev.Value, ev.Time)
		s.w.WriteEvent(ev.Device, string(ev.Kind), ev.Value, ev.Time)
	case upsd.EventDeviceConnected, upsd.EventDeviceAdded, upsd.EventDeviceRemoved:
		s.w.WriteEvent(ev.Device, string(ev.Kind), "", ev.Time)
	}
}
