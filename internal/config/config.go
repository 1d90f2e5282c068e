package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the STI processing engine.
const (
	// Default values for the spectral computation
	DefaultFFTLength    = 1024 // Frequency bins per spectrum (even)
	DefaultIntegrations = 1    // Periodograms averaged per time bin
	DefaultTimeBins     = 100  // Time bins per published cube

	// Processing limits
	MinFFTLength    = 2       // Smallest usable FFT length
	MaxFFTLength    = 1 << 15 // Largest frequency axis worth publishing
	MinIntegrations = 1
	MinTimeBins     = 1

	// Session scheduling
	MaxSessions = 7 // Concurrent processing sessions; extra starts are rejected

	// Loop pacing. Streaming mode sleeps less so the window tracks fresh
	// samples; playback mode has nothing new to chase.
	DefaultStreamingInterval = 80 * time.Millisecond
	DefaultPlaybackInterval  = 250 * time.Millisecond

	// Init barrier: bounded wait for construction to finish before the
	// loop body may run.
	DefaultBarrierRetries  = 100
	DefaultBarrierInterval = 100 * time.Millisecond

	// Streaming window span when none is configured
	DefaultStreamingWindowSeconds = 10.0
)

// Config holds all runtime configuration options for the STI engine.
// It is constructed via command line flags and/or a YAML configuration file.
type Config struct {
	Command  string          `yaml:"-"`         // One-off subcommand ("list"), empty for a session run.
	TUIMode  bool            `yaml:"-"`         // Browse channels interactively before starting.
	Debug    bool            `yaml:"debug"`     // Enable debug mode (verbose logging).
	LogLevel string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Archive  ArchiveConfig   `yaml:"archive"`   // Archive location and channel selection.
	Spectral SpectralConfig  `yaml:"spectral"`  // FFT and time-binning parameters.
	Loop     LoopConfig      `yaml:"loop"`      // Processing loop pacing and limits.
	Export   TransportConfig `yaml:"export"`    // Result publishing (WebSocket, UDP).
}

// ArchiveConfig selects the sample archive and the channels to process.
type ArchiveConfig struct {
	Path     string   `yaml:"path"`     // Archive directory.
	Channels []string `yaml:"channels"` // Channel entries ("chan" or "chan:sub"); empty means all.
}

// SpectralConfig holds the operator-tunable spectral parameters. These are
// the initial values; a running session can replace them at any time.
type SpectralConfig struct {
	FFTLength    int     `yaml:"fft_length"`    // Frequency bins per spectrum; odd values round up.
	Integrations int     `yaml:"integrations"`  // Periodograms averaged per time bin (>= 1).
	TimeBins     int     `yaml:"time_bins"`     // Time bins per cube (>= 1).
	WindowStart  float64 `yaml:"window_start"`  // Playback window start, epoch seconds.
	WindowEnd    float64 `yaml:"window_end"`    // Playback window end, epoch seconds.
	Streaming    bool    `yaml:"streaming"`     // Track live archive growth instead of a fixed window.
	WindowSpan   float64 `yaml:"window_span_s"` // Streaming window span in seconds.
}

// LoopConfig holds processing loop pacing and the init barrier budget.
type LoopConfig struct {
	StreamingInterval time.Duration `yaml:"streaming_interval"` // Pause between iterations in streaming mode.
	PlaybackInterval  time.Duration `yaml:"playback_interval"`  // Pause between iterations in playback mode.
	BarrierRetries    int           `yaml:"barrier_retries"`    // Init barrier polls before giving up.
	BarrierInterval   time.Duration `yaml:"barrier_interval"`   // Pause between init barrier polls.
	MaxSessions       int           `yaml:"max_sessions"`       // Concurrent session cap.
}

// TransportConfig holds settings for publishing results to external viewers.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"` // Serve iteration frames over WebSocket.
	WebSocketAddr    string        `yaml:"websocket_addr"`    // Listen address, e.g. ":8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`       // Send median spectra over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// NewConfig creates a new Config instance with default values. This is
// typically used as the base configuration before applying command line
// arguments or config file settings.
func NewConfig() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Spectral: SpectralConfig{
			FFTLength:    DefaultFFTLength,
			Integrations: DefaultIntegrations,
			TimeBins:     DefaultTimeBins,
			WindowSpan:   DefaultStreamingWindowSeconds,
		},
		Loop: LoopConfig{
			StreamingInterval: DefaultStreamingInterval,
			PlaybackInterval:  DefaultPlaybackInterval,
			BarrierRetries:    DefaultBarrierRetries,
			BarrierInterval:   DefaultBarrierInterval,
			MaxSessions:       MaxSessions,
		},
		Export: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddr:    ":8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond,
		},
	}
}
