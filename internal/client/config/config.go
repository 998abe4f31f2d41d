package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the daybook client.
//
// Fields:
//   - ServerURL: base URL of the sync server, scheme included.
//   - DBPath: filesystem path of the local sqlite database.
//   - DeviceName: human-readable device name reported at registration.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - RequestTimeout: per-request HTTP timeout.
//   - SyncTimeout: upper bound for one full sync cycle.
type Config struct {
	ServerURL           string
	DBPath              string
	DeviceName          string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	SyncTimeout         time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DBPath = "daybook.db"
	c.DeviceName = defaultDeviceName()
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.SyncTimeout = time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

func defaultDeviceName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "daybook-client"
	}
	return name
}
