package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFileAt(t, path, content)
	return path
}

func writeFileAt(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
  name: "Rack room"
state_path: "/run/upswatch"
upsd:
  max_age: 20
  ping_interval: 4
  discover: true
devices:
  - name: ups1
    driver: dummy-ups
    port: ups1.dev
    desc: "Rack UPS"
    options:
      mode: dummy-loop
users:
  - name: admin
    password: "` + testHash + `"
    actions: [SET, FSD]
    instcmds: [all]
security:
  jwt:
    secret: "this-is-a-test-secret-at-least-32-chars"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-site", cfg.Site.ID)
	assert.Equal(t, "/run/upswatch", cfg.StatePath)
	assert.Equal(t, 20, cfg.UPSD.MaxAge)
	assert.Equal(t, 4, cfg.UPSD.PingInterval)
	assert.True(t, cfg.UPSD.Discover)

	// Defaults survive for keys the file does not mention.
	assert.Equal(t, 5, cfg.UPSD.ReconnectInterval)
	assert.Equal(t, 300, cfg.UPSD.ConnFailLogInterval)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "dummy-ups", cfg.Devices[0].Driver)
	assert.Equal(t, "dummy-loop", cfg.Devices[0].Options["mode"])

	dev, ok := cfg.Device("UPS1")
	assert.True(t, ok)
	assert.Equal(t, "Rack UPS", dev.Desc)

	require.Len(t, cfg.Users, 1)
	assert.Equal(t, []string{"all"}, cfg.Users[0].InstCmds)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "devices: [\n"))
	assert.ErrorContains(t, err, "parsing config file")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UPSWATCH_STATE_PATH", "/tmp/state")
	t.Setenv("UPSWATCH_API_PORT", "8080")
	t.Setenv("UPSWATCH_LOG_LEVEL", "debug")
	t.Setenv("UPSWATCH_JWT_SECRET", "env-secret")

	cfg, err := Load(writeConfig(t, "state_path: /run/nut\n"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/state", cfg.StatePath)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "env-secret", cfg.Security.JWT.Secret)
}

func TestEnvOverrides_BadPortIgnored(t *testing.T) {
	t.Setenv("UPSWATCH_API_PORT", "not-a-port")
	cfg := Default()
	assert.Equal(t, 3493, cfg.API.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "state path required",
			mutate:  func(c *Config) { c.StatePath = "" },
			wantErr: "state_path is required",
		},
		{
			name:    "ping interval must be below max age",
			mutate:  func(c *Config) { c.UPSD.PingInterval = c.UPSD.MaxAge },
			wantErr: "upsd.ping_interval",
		},
		{
			name: "device needs driver and port",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{{Name: "ups1"}}
			},
			wantErr: "devices[0] (ups1): driver is required",
		},
		{
			name: "device names unique regardless of case",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{
					{Name: "ups1", Driver: "dummy-ups", Port: "a.dev"},
					{Name: "UPS1", Driver: "dummy-ups", Port: "b.dev"},
				}
			},
			wantErr: "defined more than once",
		},
		{
			name: "device name without slashes",
			mutate: func(c *Config) {
				c.Devices = []DeviceConfig{{Name: "a/b", Driver: "dummy-ups", Port: "a.dev"}}
			},
			wantErr: "must not contain spaces or slashes",
		},
		{
			name: "user password must be hashed",
			mutate: func(c *Config) {
				c.Security.JWT.Secret = "this-is-a-test-secret-at-least-32-chars"
				c.Users = []UserConfig{{Name: "admin", Password: "hunter2"}}
			},
			wantErr: "must be an argon2id hash",
		},
		{
			name: "unknown action",
			mutate: func(c *Config) {
				c.Security.JWT.Secret = "this-is-a-test-secret-at-least-32-chars"
				c.Users = []UserConfig{{Name: "admin", Password: testHash, Actions: []string{"REBOOT"}}}
			},
			wantErr: `unknown action "REBOOT"`,
		},
		{
			name: "users need a jwt secret",
			mutate: func(c *Config) {
				c.Users = []UserConfig{{Name: "admin", Password: testHash}}
			},
			wantErr: "security.jwt.secret is required",
		},
		{
			name: "short jwt secret",
			mutate: func(c *Config) {
				c.Security.JWT.Secret = "short"
				c.Users = []UserConfig{{Name: "admin", Password: testHash}}
			},
			wantErr: "at least 32 characters",
		},
		{
			name:    "mqtt qos",
			mutate:  func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "influx url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url is required",
		},
		{
			name:    "api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestTimeouts(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, Seconds(30), cfg.GetReadTimeout())
	assert.Equal(t, Seconds(30), cfg.GetWriteTimeout())
	assert.Equal(t, Seconds(60), cfg.GetIdleTimeout())
}

func TestDeviceDurations(t *testing.T) {
	cfg := defaultConfig()
	dev := DeviceConfig{Name: "ups1"}
	assert.Equal(t, Seconds(2), cfg.GetPollInterval(dev))
	assert.Equal(t, Seconds(45), cfg.GetMaxStartDelay(dev))

	dev.PollInterval = 10
	dev.MaxStartDelay = 90
	assert.Equal(t, Seconds(10), cfg.GetPollInterval(dev))
	assert.Equal(t, Seconds(90), cfg.GetMaxStartDelay(dev))
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, "/etc/upswatch/ups1.dev", ResolvePort("/etc/upswatch/config.yaml", "ups1.dev"))
	assert.Equal(t, "/var/lib/ups1.seq", ResolvePort("/etc/upswatch/config.yaml", "/var/lib/ups1.seq"))
	assert.Equal(t, "auto", ResolvePort("/etc/upswatch/config.yaml", "auto"))
	assert.Equal(t, "", ResolvePort("/etc/upswatch/config.yaml", ""))
}
