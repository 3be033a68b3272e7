package upsd

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/upswatch/internal/wire"
)

// Default timings.
const (
	// DefaultMaxAge is how long a device may go unheard before it is stale.
	DefaultMaxAge = 15 * time.Second

	// DefaultPingInterval is how long a quiet driver waits before a PING.
	DefaultPingInterval = 5 * time.Second

	// DefaultReconnectInterval spaces connection attempts to a down driver.
	DefaultReconnectInterval = 5 * time.Second

	// DefaultConnFailLogInterval throttles "can't connect" log lines.
	DefaultConnFailLogInterval = 5 * time.Minute

	// defaultCheckInterval is how often every device is checked.
	defaultCheckInterval = time.Second

	// defaultDialTimeout bounds one connection attempt.
	defaultDialTimeout = 2 * time.Second

	// connEventQueueSize buffers lines between readers and the loop.
	connEventQueueSize = 256
)

// Options configures a Daemon.
type Options struct {
	// StatePath is the directory holding driver sockets.
	StatePath string

	// MaxAge marks a device stale when nothing is heard for this long.
	// Default: 15 seconds.
	MaxAge time.Duration

	// PingInterval is how long a driver may be silent before upsd pings it.
	// Default: 5 seconds.
	PingInterval time.Duration

	// ReconnectInterval is the delay between connection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration

	// ConnFailLogInterval limits how often a connection failure is logged
	// per device. Default: 5 minutes.
	ConnFailLogInterval time.Duration

	// CheckInterval is the period of the liveness check. Default: 1 second.
	CheckInterval time.Duration

	// DialTimeout bounds one connection attempt. Default: 2 seconds.
	DialTimeout time.Duration

	// MaxLineLength bounds one protocol line from a driver.
	MaxLineLength int

	// Discover adds devices found as sockets in StatePath that no
	// configuration entry declares.
	Discover bool

	// KnownDrivers helps split discovered socket names into driver and device.
	KnownDrivers []string
}

func (o *Options) applyDefaults() {
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.ConnFailLogInterval <= 0 {
		o.ConnFailLogInterval = DefaultConnFailLogInterval
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = defaultCheckInterval
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.MaxLineLength <= 0 {
		o.MaxLineLength = wire.DefaultMaxLineLength
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier receives daemon events. *Dispatcher implements it.
type Notifier interface {
	Notify(Event)
}

// Daemon mirrors the state of every configured UPS from its driver socket.
//
// Every Device is owned by the goroutine running Run. Driver readers, API
// requests and the liveness ticker reach it only through channels, so the
// mirrored stores need no locks.
type Daemon struct {
	opts    Options
	configs []DeviceConfig
	devices map[string]*Device

	connEvents chan connEvent
	requests   chan func()
	done       chan struct{}
	readers    sync.WaitGroup
	running    atomic.Bool
	nextConnID uint64

	logger   Logger
	notifier Notifier
}

// New creates a daemon for the given devices. Connections are made by Run.
func New(opts Options, devices []DeviceConfig) *Daemon {
	opts.applyDefaults()
	return &Daemon{
		opts:       opts,
		configs:    slices.Clone(devices),
		devices:    make(map[string]*Device),
		connEvents: make(chan connEvent, connEventQueueSize),
		requests:   make(chan func()),
		done:       make(chan struct{}),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger. Call before Run.
func (d *Daemon) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// SetNotifier sets the event receiver. Call before Run.
func (d *Daemon) SetNotifier(n Notifier) {
	d.notifier = n
}

func (d *Daemon) emit(ev Event) {
	if d.notifier == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	d.notifier.Notify(ev)
}

// Run owns every device until ctx is cancelled. It connects to each
// driver, applies their updates, and serves requests from other goroutines.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("upsd: already running")
	}
	select {
	case <-d.done:
		return ErrNotRunning
	default:
	}

	d.reload(d.configs, time.Now())

	ticker := time.NewTicker(d.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.stop()
			return nil
		case ev := <-d.connEvents:
			d.handleConnEvent(ev, time.Now())
		case req := <-d.requests:
			req()
		case now := <-ticker.C:
			d.checkAll(now)
		}
	}
}

func (d *Daemon) stop() {
	close(d.done)
	for _, dev := range d.devices {
		d.dropConn(dev)
	}
	d.readers.Wait()
	d.running.Store(false)
	d.logger.Info("upsd stopped", "devices", len(d.devices))
}

// do runs fn on the daemon loop and waits for it to finish.
func (d *Daemon) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	req := func() {
		defer close(finished)
		fn()
	}

	select {
	case d.requests <- req:
	case <-d.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload replaces the device list. Devices still declared keep their
// connection and mirrored state; devices no longer declared are torn
// down and their clients kicked.
func (d *Daemon) Reload(ctx context.Context, devices []DeviceConfig) error {
	devices = slices.Clone(devices)
	return d.do(ctx, func() {
		d.configs = devices
		d.reload(devices, time.Now())
	})
}

func (d *Daemon) reload(configs []DeviceConfig, now time.Time) {
	for _, dev := range d.devices {
		dev.retain = false
	}

	all := configs
	if d.opts.Discover {
		all = append(slices.Clone(configs), d.discovered(configs)...)
	}

	for _, cfg := range all {
		if cfg.Name == "" {
			d.logger.Warn("UPS definition without a name, ignoring")
			continue
		}
		if cfg.Driver == "" || cfg.Port == "" {
			d.logger.Warn("UPS has no driver or port defined, ignoring", "ups", cfg.Name)
			continue
		}

		if dev, ok := d.devices[deviceKey(cfg.Name)]; ok {
			d.updateDevice(dev, cfg)
		} else {
			d.addDevice(cfg, now)
		}
	}

	for _, key := range slices.Sorted(maps.Keys(d.devices)) {
		if dev := d.devices[key]; !dev.retain {
			d.removeDevice(dev)
		}
	}

	metricDevices.Set(float64(len(d.devices)))
	if len(d.devices) == 0 {
		d.logger.Warn("no UPS definitions currently defined, nothing to monitor")
	}

	d.checkAll(now)
}

func (d *Daemon) discovered(configs []DeviceConfig) []DeviceConfig {
	found, err := Discover(d.opts.StatePath, d.opts.KnownDrivers...)
	if err != nil {
		d.logger.Warn("socket discovery failed", "path", d.opts.StatePath, "error", err)
		return nil
	}

	declared := make(map[string]bool, len(configs))
	for _, c := range configs {
		declared[c.SocketName()] = true
		declared[deviceKey(c.Name)] = true
	}

	var out []DeviceConfig
	for _, f := range found {
		cfg := f.DeviceConfig()
		if declared[f.Socket] || declared[deviceKey(cfg.Name)] {
			continue
		}
		d.logger.Info("discovered UPS socket", "ups", cfg.Name, "driver", cfg.Driver, "socket", f.Socket)
		out = append(out, cfg)
	}
	return out
}

func (d *Daemon) addDevice(cfg DeviceConfig, now time.Time) {
	dev := newDevice(cfg, now, d.opts.ConnFailLogInterval)
	d.devices[deviceKey(cfg.Name)] = dev

	metricDeviceStale.WithLabelValues(cfg.Name).Set(1)
	metricDeviceConnected.WithLabelValues(cfg.Name).Set(0)
	d.logger.Info("UPS added", "ups", cfg.Name, "driver", cfg.Driver, "port", cfg.Port)
	d.emit(Event{Kind: EventDeviceAdded, Device: cfg.Name})
}

func (d *Daemon) updateDevice(dev *Device, cfg DeviceConfig) {
	dev.retain = true

	socket := cfg.SocketName()
	if socket != dev.socket {
		d.logger.Info("Redefined UPS, reconnecting", "ups", cfg.Name, "old_socket", dev.socket, "socket", socket)
		d.dropConn(dev)
		dev.store.Reset()
		dev.cmds.Reset()
		dev.socket = socket
		dev.lastConnAttempt = time.Time{}
	}
	dev.cfg = cfg
}

func (d *Daemon) removeDevice(dev *Device) {
	name := dev.cfg.Name
	if dev.logins > 0 {
		d.logger.Warn("UPS removed, kicking clients", "ups", name, "logins", dev.logins)
	} else {
		d.logger.Info("UPS removed", "ups", name)
	}
	d.emit(Event{Kind: EventDeviceRemoved, Device: name, Logins: dev.logins})

	d.dropConn(dev)
	dev.store.Reset()
	dev.cmds.Reset()
	delete(d.devices, deviceKey(name))
	forgetDeviceMetrics(name)
}

// connect opens the driver socket and asks for a full dump.
func (d *Daemon) connect(dev *Device, now time.Time) {
	dev.lastConnAttempt = now
	path := filepath.Join(d.opts.StatePath, dev.socket)

	nc, err := dialDriver(path, d.opts.DialTimeout)
	if err != nil {
		metricConnectFailures.WithLabelValues(dev.cfg.Name).Inc()
		dev.connFailLog.Do(func() {
			d.logger.Warn("Can't connect to UPS driver", "ups", dev.cfg.Name, "socket", path, "error", err)
		})
		return
	}

	d.nextConnID++
	conn := &driverConn{id: d.nextConnID, nc: nc}
	dev.conn = conn
	dev.connID = conn.id
	dev.store.Reset()
	dev.cmds.Reset()
	dev.dumpDone = false
	dev.dataOK = false
	dev.lastHeard = now
	dev.lastPing = now

	d.readers.Add(1)
	go func(key string) {
		defer d.readers.Done()
		conn.readLoop(key, d.opts.MaxLineLength, d.connEvents, d.done)
	}(deviceKey(dev.cfg.Name))

	if err := conn.send(wire.DumpAll); err != nil {
		d.logger.Warn("DUMPALL to driver failed", "ups", dev.cfg.Name, "error", err)
		d.dropConn(dev)
		return
	}

	d.logger.Info("Connected to UPS", "ups", dev.cfg.Name, "socket", path)
	metricDeviceConnected.WithLabelValues(dev.cfg.Name).Set(1)
	d.emit(Event{Kind: EventDeviceConnected, Device: dev.cfg.Name})
}

// dropConn closes the driver connection. The device stays defined.
func (d *Daemon) dropConn(dev *Device) {
	if dev.conn == nil {
		return
	}
	dev.conn.close()
	dev.conn = nil
	dev.dumpDone = false
	metricDeviceConnected.WithLabelValues(dev.cfg.Name).Set(0)
}

func (d *Daemon) handleConnEvent(ev connEvent, now time.Time) {
	dev, ok := d.devices[ev.device]
	if !ok || dev.conn == nil || dev.connID != ev.connID {
		return
	}

	switch ev.kind {
	case connLine:
		dev.lastHeard = now
		metricDriverLines.WithLabelValues(dev.cfg.Name).Inc()
		d.apply(dev, ev.args)

	case connParseError:
		dev.lastHeard = now
		d.logger.Info("parse error from driver", "ups", dev.cfg.Name, "error", ev.err)

	case connClosed:
		d.logger.Warn("UPS disconnected, check driver", "ups", dev.cfg.Name, "error", ev.err)
		d.dropConn(dev)
		d.emit(Event{Kind: EventDeviceDisconnected, Device: dev.cfg.Name})
	}

	d.updateStale(dev, now)
}

func (d *Daemon) checkAll(now time.Time) {
	for _, key := range slices.Sorted(maps.Keys(d.devices)) {
		d.checkDevice(d.devices[key], now)
	}
}

// checkDevice reconnects a down driver, pings a quiet one, and
// re-evaluates staleness.
func (d *Daemon) checkDevice(dev *Device, now time.Time) {
	if dev.conn == nil {
		if dev.lastConnAttempt.IsZero() || now.Sub(dev.lastConnAttempt) >= d.opts.ReconnectInterval {
			d.connect(dev, now)
		}
	} else if now.Sub(dev.lastHeard) >= d.opts.PingInterval && now.Sub(dev.lastPing) >= d.opts.PingInterval {
		dev.lastPing = now
		if err := dev.conn.send(wire.Ping); err != nil {
			d.logger.Warn("PING to driver failed", "ups", dev.cfg.Name, "error", err)
			d.dropConn(dev)
			d.emit(Event{Kind: EventDeviceDisconnected, Device: dev.cfg.Name})
		}
	}

	d.updateStale(dev, now)
}

func (d *Daemon) updateStale(dev *Device, now time.Time) {
	stale := dev.conn == nil || !dev.dumpDone || !dev.dataOK || now.Sub(dev.lastHeard) > d.opts.MaxAge
	if stale == dev.stale {
		return
	}
	dev.stale = stale
	metricDeviceStale.WithLabelValues(dev.cfg.Name).Set(boolGauge(stale))

	if stale {
		d.logger.Warn("Data for UPS is stale, check driver", "ups", dev.cfg.Name)
		d.emit(Event{Kind: EventDeviceStale, Device: dev.cfg.Name})
		return
	}
	d.logger.Info("UPS data is no longer stale", "ups", dev.cfg.Name)
	d.emit(Event{Kind: EventDeviceOK, Device: dev.cfg.Name, Value: dev.status()})
}

func (d *Daemon) lookup(name string) (*Device, error) {
	dev, ok := d.devices[deviceKey(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	return dev, nil
}
