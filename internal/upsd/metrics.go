package upsd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricDevices is the number of devices currently defined.
	metricDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "upswatch",
		Name:      "devices",
		Help:      "Number of UPS devices currently defined",
	})

	// metricDeviceStale is 1 while a device's data is stale.
	metricDeviceStale = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "upswatch",
		Name:      "device_stale",
		Help:      "1 if the device data is stale, 0 otherwise",
	}, []string{"device"})

	// metricDeviceConnected is 1 while the driver socket is connected.
	metricDeviceConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "upswatch",
		Name:      "device_connected",
		Help:      "1 if upsd is connected to the device driver, 0 otherwise",
	}, []string{"device"})

	// metricDeviceVariables is the size of each mirrored variable tree.
	metricDeviceVariables = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "upswatch",
		Name:      "device_variables",
		Help:      "Number of variables mirrored for the device",
	}, []string{"device"})

	// metricDriverLines counts protocol lines read from drivers.
	metricDriverLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upswatch",
		Name:      "driver_lines_total",
		Help:      "Protocol lines received from the device driver",
	}, []string{"device"})

	// metricConnectFailures counts failed driver connection attempts.
	metricConnectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "upswatch",
		Name:      "driver_connect_failures_total",
		Help:      "Failed attempts to connect to the device driver socket",
	}, []string{"device"})

	// metricEventsDropped counts events lost because the sink queue was full.
	metricEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "upswatch",
		Name:      "events_dropped_total",
		Help:      "Events dropped because the sink queue was full",
	})
)

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// forgetDeviceMetrics removes a device's labelled series.
func forgetDeviceMetrics(name string) {
	metricDeviceStale.DeleteLabelValues(name)
	metricDeviceConnected.DeleteLabelValues(name)
	metricDeviceVariables.DeleteLabelValues(name)
	metricDriverLines.DeleteLabelValues(name)
	metricConnectFailures.DeleteLabelValues(name)
}
