package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"sti/pkg/bitint"
)

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it searches default locations ("sti.yaml", "config.yaml"). If no
// file is found, it uses built-in defaults. After loading, it applies
// environment variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		candidates := []string{
			"sti.yaml",
			"config.yaml",
		}
		found := false
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				found = true
				break
			}
		}
		if !found {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate normalizes and checks the configuration. Odd FFT lengths are
// rounded up rather than rejected; genuinely unusable values error out.
func (c *Config) Validate() error {
	c.Spectral.FFTLength = bitint.NextEven(c.Spectral.FFTLength)
	if c.Spectral.FFTLength > MaxFFTLength {
		return fmt.Errorf("spectral.fft_length %d exceeds maximum %d", c.Spectral.FFTLength, MaxFFTLength)
	}
	if c.Spectral.Integrations < MinIntegrations {
		c.Spectral.Integrations = MinIntegrations
	}
	if c.Spectral.TimeBins < MinTimeBins {
		c.Spectral.TimeBins = MinTimeBins
	}
	if !c.Spectral.Streaming && c.Spectral.WindowEnd < c.Spectral.WindowStart {
		return fmt.Errorf("spectral.window_end %v precedes window_start %v",
			c.Spectral.WindowEnd, c.Spectral.WindowStart)
	}
	if c.Spectral.WindowSpan <= 0 {
		c.Spectral.WindowSpan = DefaultStreamingWindowSeconds
	}

	if c.Loop.MaxSessions <= 0 || c.Loop.MaxSessions > MaxSessions {
		c.Loop.MaxSessions = MaxSessions
	}
	if c.Loop.StreamingInterval <= 0 {
		c.Loop.StreamingInterval = DefaultStreamingInterval
	}
	if c.Loop.PlaybackInterval <= 0 {
		c.Loop.PlaybackInterval = DefaultPlaybackInterval
	}
	if c.Loop.BarrierRetries <= 0 {
		c.Loop.BarrierRetries = DefaultBarrierRetries
	}
	if c.Loop.BarrierInterval <= 0 {
		c.Loop.BarrierInterval = DefaultBarrierInterval
	}

	if c.Export.UDPEnabled {
		if c.Export.UDPTargetAddress == "" {
			return fmt.Errorf("export.udp_target_address must be set when UDP is enabled")
		}
		if c.Export.UDPSendInterval <= 0 {
			return fmt.Errorf("export.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Export.WebSocketEnabled && c.Export.WebSocketAddr == "" {
		return fmt.Errorf("export.websocket_addr must be set when WebSocket is enabled")
	}

	return nil
}

func (cfg *Config) applyEnvOverrides() {
	// STI_{...}
	// These are general overrides.

	if val, ok := os.LookupEnv("STI_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
		}
	}
	if val, ok := os.LookupEnv("STI_ARCHIVE"); ok {
		cfg.Archive.Path = val
	}

	// STI_UDP_{...}
	// These are specific to the export layer.

	if val, ok := os.LookupEnv("STI_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Export.UDPEnabled = bVal
		}
	}
	if val, ok := os.LookupEnv("STI_UDP_TARGET_ADDRESS"); ok {
		cfg.Export.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("STI_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Export.UDPSendInterval = dur
		}
	}
}
