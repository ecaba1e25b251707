// Package config loads transportd's runtime configuration from the
// environment, replacing the teacher's hand-rolled DefaultNetworkConfig
// with envconfig struct tags.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/j-rivero/ign-transport-git/discovery"
)

// Config holds every environment-tunable setting for a transportd
// process. Field names mirror the original's IGN_* environment
// variables (IGN_IP, IGN_PARTITION, IGN_VERBOSE) plus the discovery
// timing knobs exposed as discovery.Option in package discovery.
type Config struct {
	Host      string `envconfig:"IGN_IP" default:""`
	Partition string `envconfig:"IGN_PARTITION" default:""`
	Verbose   bool   `envconfig:"IGN_VERBOSE" default:"false"`

	DiscoveryPort              int           `envconfig:"IGN_DISCOVERY_PORT" default:"10317"`
	DiscoveryHeartbeatInterval time.Duration `envconfig:"IGN_DISCOVERY_HEARTBEAT" default:"1s"`
	DiscoveryActivityInterval  time.Duration `envconfig:"IGN_DISCOVERY_ACTIVITY" default:"100ms"`
	DiscoverySilenceInterval   time.Duration `envconfig:"IGN_DISCOVERY_SILENCE" default:"3s"`

	MetricsAddr string `envconfig:"IGN_METRICS_ADDR" default:":9102"`
}

// Load reads Config from the process environment, applying the defaults
// above for anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// DiscoveryOptions translates the loaded config into the functional
// options discovery.New expects.
func (c Config) DiscoveryOptions() []discovery.Option {
	return []discovery.Option{
		discovery.WithPort(c.DiscoveryPort),
		discovery.WithHeartbeatInterval(c.DiscoveryHeartbeatInterval),
		discovery.WithActivityInterval(c.DiscoveryActivityInterval),
		discovery.WithSilenceInterval(c.DiscoverySilenceInterval),
		discovery.WithVerbose(c.Verbose),
	}
}
