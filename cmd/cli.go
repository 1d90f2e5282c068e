package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"sti/internal/config"
	"sti/pkg/build"
)

// ParseArgs builds the runtime configuration: YAML file (or defaults) as
// the base, then any command line flag the user actually set on top.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var (
		configFile string
		options    *config.Config
		flags      = config.NewConfig()
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			overlayChanged(cmd, cfg, flags)
			options = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.TUIMode = true
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archive channels and the effective processing parameters",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "list"
			options.TUIMode = false
		},
	}
	rootCmd.AddCommand(listCmd)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "",
		"Path to a YAML configuration file")

	// Archive selection
	rootCmd.PersistentFlags().StringVarP(&flags.Archive.Path, "archive", "a", "",
		"Path to the sample archive directory")
	rootCmd.PersistentFlags().StringSliceVarP(&flags.Archive.Channels, "channel", "c", nil,
		"Channel entry to process ('chan' or 'chan:sub'); repeatable, default all")

	// Spectral parameters
	rootCmd.PersistentFlags().IntVarP(&flags.Spectral.FFTLength, "fft-length", "n", config.DefaultFFTLength,
		"Frequency bins per spectrum (odd values round up)")
	rootCmd.PersistentFlags().IntVarP(&flags.Spectral.Integrations, "integrations", "i", config.DefaultIntegrations,
		"Periodograms averaged per time bin")
	rootCmd.PersistentFlags().IntVarP(&flags.Spectral.TimeBins, "time-bins", "t", config.DefaultTimeBins,
		"Time bins per published result")
	rootCmd.PersistentFlags().Float64Var(&flags.Spectral.WindowStart, "start", 0,
		"Playback window start, seconds since epoch")
	rootCmd.PersistentFlags().Float64Var(&flags.Spectral.WindowEnd, "end", 0,
		"Playback window end, seconds since epoch")
	rootCmd.PersistentFlags().BoolVarP(&flags.Spectral.Streaming, "streaming", "s", false,
		"Track live archive growth instead of a fixed window")
	rootCmd.PersistentFlags().Float64Var(&flags.Spectral.WindowSpan, "window-span", config.DefaultStreamingWindowSeconds,
		"Streaming window span in seconds")

	// Result export
	rootCmd.PersistentFlags().BoolVar(&flags.Export.WebSocketEnabled, "websocket", false,
		"Broadcast iteration frames over WebSocket")
	rootCmd.PersistentFlags().StringVar(&flags.Export.WebSocketAddr, "websocket-addr", ":8080",
		"WebSocket listen address")
	rootCmd.PersistentFlags().BoolVar(&flags.Export.UDPEnabled, "udp", false,
		"Send median spectra over UDP")
	rootCmd.PersistentFlags().StringVar(&flags.Export.UDPTargetAddress, "udp-target", "127.0.0.1:9090",
		"UDP target address and port")

	// Debug configuration
	rootCmd.PersistentFlags().BoolVarP(&flags.Debug, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// overlayChanged copies only explicitly set flags onto the file-derived
// configuration, so the YAML file keeps authority over untouched knobs.
func overlayChanged(cmd *cobra.Command, cfg, flags *config.Config) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }

	if set("archive") {
		cfg.Archive.Path = flags.Archive.Path
	}
	if set("channel") {
		cfg.Archive.Channels = flags.Archive.Channels
	}
	if set("fft-length") {
		cfg.Spectral.FFTLength = flags.Spectral.FFTLength
	}
	if set("integrations") {
		cfg.Spectral.Integrations = flags.Spectral.Integrations
	}
	if set("time-bins") {
		cfg.Spectral.TimeBins = flags.Spectral.TimeBins
	}
	if set("start") {
		cfg.Spectral.WindowStart = flags.Spectral.WindowStart
	}
	if set("end") {
		cfg.Spectral.WindowEnd = flags.Spectral.WindowEnd
	}
	if set("streaming") {
		cfg.Spectral.Streaming = flags.Spectral.Streaming
	}
	if set("window-span") {
		cfg.Spectral.WindowSpan = flags.Spectral.WindowSpan
	}
	if set("websocket") {
		cfg.Export.WebSocketEnabled = flags.Export.WebSocketEnabled
	}
	if set("websocket-addr") {
		cfg.Export.WebSocketAddr = flags.Export.WebSocketAddr
	}
	if set("udp") {
		cfg.Export.UDPEnabled = flags.Export.UDPEnabled
	}
	if set("udp-target") {
		cfg.Export.UDPTargetAddress = flags.Export.UDPTargetAddress
	}
	if set("verbose") {
		cfg.Debug = flags.Debug
	}
}
