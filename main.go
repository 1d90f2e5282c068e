package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"sti/cmd"
	"sti/internal/config"
	"sti/internal/drf"
	applog "sti/internal/log"
	"sti/internal/sti"
	"sti/internal/transport"
	"sti/internal/transport/udp"
	"sti/internal/tui"
	"sti/pkg/build"
)

// main runs in three phases:
//
// 1. Startup:
//   - Initialize build information
//   - Parse the configuration (YAML file + command line flags)
//   - Execute one-off commands ("list") that need no processing loop
//
// 2. Processing:
//   - Open the archive and start one session per selected channel entry
//   - Publish results to the configured transports
//
// 3. Shutdown:
//   - On a termination signal or when every session finishes, abort the
//     remaining sessions and close the transports
func main() {
	if err := build.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := cmd.ParseArgs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg == nil {
		// --help or --version already handled.
		return
	}

	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	} else if lvl, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(lvl)
	}

	if cfg.Command == "list" {
		if err := listArchive(cfg); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	if cfg.Archive.Path == "" {
		applog.Fatalf("no archive path configured; pass --archive or set archive.path")
	}

	manager, err := sti.Open(cfg.Archive.Path, cfg.Loop.MaxSessions)
	if err != nil {
		applog.Fatalf("opening archive %s: %v", cfg.Archive.Path, err)
	}

	settings := sti.Settings{
		FFTLength:    cfg.Spectral.FFTLength,
		Integrations: cfg.Spectral.Integrations,
		TimeBins:     cfg.Spectral.TimeBins,
		WindowStart:  cfg.Spectral.WindowStart,
		WindowEnd:    cfg.Spectral.WindowEnd,
	}

	entries := cfg.Archive.Channels
	if len(entries) == 0 && cfg.TUIMode {
		selection, err := tui.StartChannelListUI(manager.Accessor())
		if err != nil {
			applog.Fatalf("channel browser: %v", err)
		}
		if selection == nil {
			return
		}
		entries = []string{selection.Entry}
		settings.FFTLength = selection.FFTLength
	}
	if len(entries) == 0 {
		entries = manager.Accessor().Entries()
	}

	sink, closers, err := buildTransports(cfg)
	if err != nil {
		applog.Fatalf("configuring transports: %v", err)
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	opts := sti.Options{
		Streaming:         cfg.Spectral.Streaming,
		WindowSpan:        cfg.Spectral.WindowSpan,
		StreamingInterval: cfg.Loop.StreamingInterval,
		PlaybackInterval:  cfg.Loop.PlaybackInterval,
		BarrierRetries:    cfg.Loop.BarrierRetries,
		BarrierInterval:   cfg.Loop.BarrierInterval,
		Transport:         sink,
	}

	var wg sync.WaitGroup
	started := 0
	for _, entry := range entries {
		id, p, err := manager.Start(entry, settings, opts)
		if err != nil {
			applog.Errorf("starting session for %s: %v", entry, err)
			continue
		}
		started++

		wg.Add(1)
		go func(id int, p *sti.Processor) {
			defer wg.Done()
			term := <-p.Events().Terminated
			if term.Err != nil {
				applog.Errorf("session %d (%s): %s: %v", id, term.Entry, term.Reason.Message(), term.Err)
			} else {
				applog.Infof("session %d (%s): %s", id, term.Entry, term.Reason.Message())
			}
		}(id, p)
	}
	if started == 0 {
		applog.Fatalf("no sessions started")
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		applog.Infof("shutting down")
	case <-allDone:
	}

	manager.AbortAll()
}

// buildTransports assembles the configured result sinks. The returned
// transport is nil when nothing is enabled and debug logging is off.
func buildTransports(cfg *config.Config) (sti.Transport, []interface{ Close() error }, error) {
	var (
		sinks   transport.Fanout
		closers []interface{ Close() error }
	)

	if cfg.Debug {
		sinks = append(sinks, transport.NewLoggingTransport())
	}
	if cfg.Export.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Export.WebSocketAddr)
		sinks = append(sinks, ws)
		closers = append(closers, ws)
	}
	if cfg.Export.UDPEnabled {
		sender, err := udp.NewSender(cfg.Export.UDPTargetAddress)
		if err != nil {
			return nil, closers, err
		}
		pub, err := udp.NewPublisher(cfg.Export.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			return nil, closers, err
		}
		pub.Start()
		sinks = append(sinks, pub)
		closers = append(closers, pub, sender)
	}

	if len(sinks) == 0 {
		return nil, closers, nil
	}
	return sinks, closers, nil
}

// listArchive prints every channel entry with its stream properties and
// the processing parameters a session would start with.
func listArchive(cfg *config.Config) error {
	if cfg.Archive.Path == "" {
		return fmt.Errorf("no archive path configured; pass --archive or set archive.path")
	}
	manager, err := sti.Open(cfg.Archive.Path, cfg.Loop.MaxSessions)
	if err != nil {
		return err
	}
	acc := manager.Accessor()

	fmt.Printf("Archive: %s\n\n", cfg.Archive.Path)
	for _, entry := range acc.Entries() {
		channel, _ := drf.SplitEntry(entry)
		props, err := acc.Properties(channel)
		if err != nil {
			return err
		}
		rate, err := acc.SampleRate(channel)
		if err != nil {
			return err
		}
		bnds, err := acc.Bounds(channel)
		if err != nil {
			return err
		}
		start, err := acc.SampleToDatetime(channel, bnds.First)
		if err != nil {
			return err
		}

		sr, _ := rate.Float64()
		format := fmt.Sprintf("int%d", props.PrecisionBits)
		if props.FloatSamples {
			format = "float"
		}
		fmt.Printf("%s\n", entry)
		fmt.Printf("    %.6g Hz (%s/%s), %s samples\n",
			sr, rate.Num(), rate.Denom(), format)
		fmt.Printf("    samples [%d, %d], starting %s\n",
			bnds.First, bnds.Last, start.Format("2006-01-02 15:04:05.000 MST"))
		fmt.Printf("    resolution %.6g Hz at %d bins, %d integration(s), %d time bins\n",
			sr/float64(cfg.Spectral.FFTLength), cfg.Spectral.FFTLength,
			cfg.Spectral.Integrations, cfg.Spectral.TimeBins)
	}
	return nil
}
