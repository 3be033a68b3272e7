// Package influxdb writes UPS readings to InfluxDB v2.
//
// upsd feeds it from the event stream: every variable change becomes an
// ups_variable point, every availability change an ups_status point, and
// forced shutdowns and driver disconnects become ups_event points.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteVariable("ups1", "battery.charge", "87", time.Now())
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; failures arrive through SetOnError.
package influxdb
