package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/upswatch/internal/auth"
	"github.com/nerrad567/upswatch/internal/history"
	"github.com/nerrad567/upswatch/internal/infrastructure/config"
	"github.com/nerrad567/upswatch/internal/infrastructure/logging"
	"github.com/nerrad567/upswatch/internal/upsd"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// UPS is the part of upsd.Daemon the API serves.
type UPS interface {
	Devices(ctx context.Context) ([]upsd.DeviceInfo, error)
	Device(ctx context.Context, name string) (upsd.DeviceInfo, error)
	Variable(ctx context.Context, device, name string) (upsd.VariableInfo, error)
	SetVar(ctx context.Context, device, name, value string) error
	InstCmd(ctx context.Context, device, cmd, extra string) error
	SetFSD(ctx context.Context, device, by string) error
	Login(ctx context.Context, device string) error
	Logout(ctx context.Context, device string) error
}

// HistoryReader is the part of history.Repository the API serves.
type HistoryReader interface {
	List(ctx context.Context, f history.Filter) ([]history.Entry, error)
}

// HealthChecker is implemented by the optional backends (MQTT, InfluxDB,
// the history database) reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	UPS      UPS
	Users    *auth.Users

	// History is optional; without it /events answers 503.
	History HistoryReader

	// Hub is optional; New creates one if nil. upsd passes its own so the
	// same hub can be registered as an event sink.
	Hub *Hub

	// Panel is served for paths outside /api and /metrics when set.
	Panel http.Handler

	Health  map[string]HealthChecker
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	ups      UPS
	users    *auth.Users
	history  HistoryReader
	hub      *Hub
	health   map[string]HealthChecker
	limiter  *userLimiter
	panel    http.Handler
	version  string
	server   *http.Server
	listener net.Listener
}

// New creates a server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.UPS == nil {
		return nil, fmt.Errorf("ups daemon is required")
	}

	users := deps.Users
	if users == nil {
		users = auth.NewUsers(nil)
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}
	hub.SetTracker(deps.UPS)

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		ups:     deps.UPS,
		users:   users,
		history: deps.History,
		hub:     hub,
		health:  deps.Health,
		panel:   deps.Panel,
		version: deps.Version,
	}
	if deps.Security.RateLimit.Enabled {
		s.limiter = newUserLimiter(deps.Security.RateLimit.RequestsPerMinute)
	}
	return s, nil
}

// Hub returns the WebSocket hub, for registration as an event sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine. Binding
// errors (port in use) are returned here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       config.Seconds(s.cfg.Timeouts.Read),
		ReadHeaderTimeout: config.Seconds(s.cfg.Timeouts.Read),
		WriteTimeout:      config.Seconds(s.cfg.Timeouts.Write),
		IdleTimeout:       config.Seconds(s.cfg.Timeouts.Idle),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close disconnects WebSocket clients and waits up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.hub.closeAll()
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
