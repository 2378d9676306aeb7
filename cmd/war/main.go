// war - two-player War card game server, client and load driver.
//
// The server pairs TCP connections in arrival order, deals each pair a
// shuffled deck and adjudicates 26 rounds. The client plays one automated
// game; "clients" plays many at once under a concurrency cap.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/war/internal/api"
	"github.com/energizer-project/war/internal/cli"
	"github.com/energizer-project/war/internal/client"
	"github.com/energizer-project/war/internal/config"
	"github.com/energizer-project/war/internal/events"
	"github.com/energizer-project/war/internal/health"
	"github.com/energizer-project/war/internal/network"
	"github.com/energizer-project/war/internal/server"
	"github.com/energizer-project/war/internal/telemetry"
	"github.com/energizer-project/war/internal/util"
)

const Banner = `
 __      __
 \ \    / /_ _ _ _
  \ \/\/ / _' | '_|
   \_/\_/\__,_|_|   v%s
`

var (
	configDir   = flag.String("c", config.DefaultConfigDir, "configuration directory")
	verbose     = flag.Bool("v", false, "debug logging")
	concurrency = flag.Int("concurrency", 0, "clients in flight at once (overrides clients.concurrency)")
	noConsole   = flag.Bool("no-console", false, "disable the interactive server console")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage:
  war [flags] server  [host port]
  war [flags] client  [host port]
  war [flags] clients [host port] count

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	mode, rest := args[0], args[1:]

	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	count, err := applyArgs(cfg, mode, rest)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	logCfg := util.LogConfig{
		Level:      cfg.Logging.Level,
		Directory:  cfg.Logging.Directory,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    true,
		File:       cfg.Logging.File,
	}
	if *verbose {
		logCfg.Level = "debug"
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "server":
		fmt.Printf(Banner, config.AppVersion)
		os.Exit(runServer(ctx, cfg))
	case "client":
		os.Exit(runClient(ctx, cfg))
	case "clients":
		os.Exit(runClients(ctx, cfg, count))
	}
}

// applyArgs folds the positional host, port and count into cfg.
func applyArgs(cfg *config.Config, mode string, args []string) (int, error) {
	count := 0
	switch mode {
	case "server", "client":
		if len(args) != 0 && len(args) != 2 {
			return 0, fmt.Errorf("%s takes [host port]", mode)
		}
	case "clients":
		if len(args) != 1 && len(args) != 3 {
			return 0, fmt.Errorf("clients takes [host port] count")
		}
		n, err := strconv.Atoi(args[len(args)-1])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid client count %q", args[len(args)-1])
		}
		count = n
		args = args[:len(args)-1]
	default:
		return 0, fmt.Errorf("unknown mode %q", mode)
	}

	if len(args) == 2 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return 0, fmt.Errorf("invalid port %q", args[1])
		}
		srv := cfg.GetServer()
		srv.Host = args[0]
		srv.Port = port
		cfg.SetServer(srv)
	}

	if *concurrency > 0 {
		cl := cfg.GetClients()
		cl.Concurrency = *concurrency
		cfg.SetClients(cl)
	}
	if *noConsole {
		srv := cfg.GetServer()
		srv.Console = false
		cfg.SetServer(srv)
	}
	return count, nil
}

func runServer(parent context.Context, cfg *config.Config) int {
	log.Info().
		Str("version", config.AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting war server")

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	eventBus := events.NewEventBus()
	sessions := server.NewManager(cfg, eventBus)
	listener := network.NewTCPListener(cfg, eventBus, sessions)
	healthMgr := health.NewManager(cfg, eventBus, sessions, listener)

	// The console's quit command arrives as a shutdown event.
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(_ context.Context, e events.Event) error {
		if e.Source == "cli" {
			cancel()
		}
		return nil
	})

	var mqttHandler *telemetry.MQTTHandler
	if cfg.MQTT.Enabled {
		var err error
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil {
			errCh <- fmt.Errorf("tcp listener: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMgr.Start(ctx)
	}()

	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg, eventBus, sessions, listener)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 3); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	if cfg.GetServer().Console {
		console := cli.NewCLI(cfg, eventBus, sessions, listener, os.Stdin, os.Stdout)
		// Not in wg: a blocked stdin read must not hold up shutdown.
		go console.Start(ctx)
	}

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
		exitCode = 1
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	eventBus.Emit(context.Background(), events.Event{
		Type:   events.EventShutdown,
		Source: "main",
	})

	grace := time.Duration(cfg.GetServer().ShutdownGrace) * time.Second
	if !sessions.Wait(grace) {
		listener.Registry().CloseAll()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(grace + 5*time.Second):
		log.Warn().Msg("shutdown timed out, forcing exit")
	}

	eventBus.Stop()

	stats := sessions.Stats()
	log.Info().
		Uint64("completed", stats.Completed).
		Uint64("aborted", stats.Aborted).
		Msg("war server stopped")
	return exitCode
}

func runClient(ctx context.Context, cfg *config.Config) int {
	c := client.New(cfg.Addr(), clientOptions(cfg)...)
	if c.Run(ctx) == 1 {
		return 0
	}
	return 1
}

func runClients(ctx context.Context, cfg *config.Config, count int) int {
	eventBus := events.NewEventBus()

	var telemetryDone chan struct{}
	mqttCtx, stopMQTT := context.WithCancel(context.Background())
	defer stopMQTT()
	if cfg.MQTT.Enabled {
		if h, err := telemetry.NewMQTTHandler(cfg, eventBus); err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			telemetryDone = make(chan struct{})
			go func() {
				defer close(telemetryDone)
				if err := h.Start(mqttCtx); err != nil {
					log.Warn().Err(err).Msg("MQTT telemetry failed")
				}
			}()
		}
	}

	d := &client.Driver{
		Addr:        cfg.Addr(),
		Count:       count,
		Concurrency: cfg.GetClients().Concurrency,
		Options:     clientOptions(cfg),
		EventBus:    eventBus,
	}
	report := d.Run(ctx)

	// Stop waits for the load report handlers to finish publishing.
	eventBus.Stop()
	if telemetryDone != nil {
		stopMQTT()
		<-telemetryDone
	}

	cli.RenderReport(os.Stdout, d.Addr, report)

	if report.Failed > 0 {
		return 1
	}
	return 0
}

func clientOptions(cfg *config.Config) []client.Option {
	cl := cfg.GetClients()
	return []client.Option{
		client.WithDialTimeout(time.Duration(cl.DialTimeout) * time.Second),
		client.WithIOTimeout(time.Duration(cl.IOTimeout) * time.Second),
	}
}

// startWithRetry attempts to start a server, retrying after three seconds
// when binding fails.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
