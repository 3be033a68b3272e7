// Package upsd aggregates the state of every configured UPS.
//
// For each device the Daemon connects to the driver's state socket, asks
// for a full dump, and then applies every broadcast line to a mirrored
// variable store and command list. It tracks whether each device's data is
// fresh, forwards SET and INSTCMD requests to drivers, and emits Events for
// the API, MQTT, InfluxDB and history sinks.
//
// # Liveness
//
// A device is fresh only while all of these hold: its driver socket is
// connected, the initial dump has completed, the driver's last word was
// DATAOK rather than DATASTALE, and a line has been heard within MaxAge.
// Quiet drivers are sent PING after PingInterval; a driver that cannot be
// reached is retried every ReconnectInterval, with the failure logged at
// most once per ConnFailLogInterval.
//
// # Reload
//
// Reload marks every device unretained, re-declares the configured ones
// (keeping their live connections) and tears down the rest. A device whose
// driver changed is reconnected to its new socket.
//
// # Concurrency
//
// Run is the single owner of all devices. Other goroutines use the
// context-aware request methods (Devices, SetVar, Reload, ...), which
// execute on the Run goroutine.
package upsd
