// Package sinks forwards upsd events to the outside world.
//
//	upsd.Daemon ──emit──▶ upsd.Dispatcher ──┬──▶ MQTTSink    retained state + event stream
//	                                        ├──▶ InfluxSink  time-series points
//	                                        ├──▶ HistorySink SQLite ups_events
//	                                        └──▶ api.Hub     WebSocket clients
//
// Each sink runs on the dispatcher's single worker goroutine, so it sees
// events in order and must not block for long. The MQTT side also accepts
// commands: CommandHandler turns messages on {prefix}/command/{device}
// into Daemon.InstCmd and Daemon.SetVar calls.
package sinks
