// Package config loads TankSentry configuration and builds the logger.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment variables.
// When configPath is empty, a tanksentry.yaml is searched in the usual
// locations; a missing file is not an error (defaults apply).
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.dsn", "./data/tanksentry.db")

	// Telemetry channel
	v.SetDefault("channel.url", "ws://localhost:9090/api/v1/feed")
	v.SetDefault("channel.identity", "")
	v.SetDefault("channel.token", "")
	v.SetDefault("channel.handshake_timeout", "10s")
	v.SetDefault("channel.max_attempts", 5)
	v.SetDefault("channel.initial_backoff", "1s")
	v.SetDefault("channel.max_backoff", "30s")
	v.SetDefault("channel.tanks", []string{})

	// Classification policy (water quality bounds)
	v.SetDefault("policy.ph_warn_low", 6.8)
	v.SetDefault("policy.ph_warn_high", 8.2)
	v.SetDefault("policy.ph_crit_low", 6.5)
	v.SetDefault("policy.ph_crit_high", 8.5)
	v.SetDefault("policy.turbidity_warn", 3.0)
	v.SetDefault("policy.turbidity_crit", 5.0)
	v.SetDefault("policy.chlorine_warn", 1.5)
	v.SetDefault("policy.chlorine_crit", 2.0)

	// Alert dedup and notification polling
	v.SetDefault("alerts.dedup_capacity", 1024)
	v.SetDefault("notify.poll_interval", "3s")

	// Auth (channel handshake tokens)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "24h")

	// Feed simulator (tankfeed binary)
	v.SetDefault("feed.host", "0.0.0.0")
	v.SetDefault("feed.port", 9090)
	v.SetDefault("feed.emit_interval", "2s")
	v.SetDefault("feed.tanks", []string{"TANK-1", "TANK-2", "TANK-3"})

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("tanksentry")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tanksentry")
	}

	// Environment variable support: TS_SERVER_PORT=9090. The replacer
	// maps nested keys (server.port) onto the underscore form.
	v.SetEnvPrefix("TS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
