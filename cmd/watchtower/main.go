package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"watchtower/adapter"
	"watchtower/config"
	"watchtower/handler"
	"watchtower/metrics"
	"watchtower/scheduler"
	"watchtower/shutdown"
	"watchtower/storage"
	"watchtower/store"
	"watchtower/webhook"
)

var (
	// Version is set during build time
	Version = "dev"
	// BuildTime is set during build time
	BuildTime = "unknown"
	// GitCommit is set during build time
	GitCommit = "unknown"
)

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("Watchtower %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to the YAML configuration file")
		dataDir     = flag.String("data-dir", "", "Override the data directory")
		listenAddr  = flag.String("listen", "", "Override the HTTP listen address")
		logLevel    = flag.String("log-level", "", "Override the log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		PrintVersion()
		return
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := cfg.LoadFromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load environment overrides: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Errorw("watchtower exited with error", "error", err)
		os.Exit(1)
	}
}

func buildLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	log.Infow("starting watchtower",
		"version", Version,
		"escalation_interval", cfg.EscalationInterval,
		"data_dir", cfg.Storage.DataDir)

	codec, err := storage.NewCodec(cfg.Storage.Codec)
	if err != nil {
		return fmt.Errorf("failed to build storage codec: %w", err)
	}
	engine, err := storage.NewFileEngine(storage.FileEngineConfig{
		Dir:        cfg.Storage.DataDir,
		Codec:      codec,
		SyncWrites: cfg.Storage.SyncWrites,
	})
	if err != nil {
		return fmt.Errorf("failed to open storage engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alertStore, err := store.Open(ctx, engine, log.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to open alert store: %w", err)
	}

	adapters, err := buildAdapters(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build adapters: %w", err)
	}

	roleIndex, err := cfg.BuildRoles()
	if err != nil {
		return fmt.Errorf("failed to build role index: %w", err)
	}
	policy, err := cfg.BuildPolicy(roleIndex)
	if err != nil {
		return fmt.Errorf("failed to build permission policy: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	sched := scheduler.New(scheduler.Config{
		Interval:    cfg.EscalationInterval,
		CallTimeout: cfg.CallTimeout,
	}, alertStore, adapters, m, log.Named("scheduler"))

	h := handler.New(alertStore, policy, adapters, cfg.CallTimeout, m, log.Named("handler"))

	server := webhook.New(cfg.ListenAddr, alertStore, m, registry, log.Named("webhook"))

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		sched.Run(ctx)
	}()

	handlerDone := make(chan struct{})
	go func() {
		defer close(handlerDone)
		h.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	// Shutdown order: stop accepting alerts, stop escalating, close the
	// adapter queues so the handler drains, then release storage.
	mgr := shutdown.NewManager(30*time.Second, log.Named("shutdown"))
	mgr.Register("webhook server", 10, server.Shutdown)
	mgr.Register("escalation scheduler", 20, func(context.Context) error {
		cancel()
		<-schedulerDone
		return nil
	})
	mgr.Register("adapters", 30, func(context.Context) error {
		for _, a := range adapters {
			if err := a.Close(); err != nil {
				log.Warnw("failed to close adapter", "adapter", a.Name(), "error", err)
			}
		}
		<-handlerDone
		return nil
	})
	mgr.Register("storage engine", 40, func(context.Context) error {
		return engine.Close()
	})
	mgr.Listen()

	select {
	case err := <-serverErr:
		if err != nil {
			log.Errorw("webhook server failed", "error", err)
			mgr.Shutdown()
			return err
		}
		// Server closed by a signal; wait for the teardown to finish.
		mgr.Wait()
	case <-mgr.Triggered():
		mgr.Wait()
	}
	return nil
}

// buildAdapters constructs every adapter the configuration enables.
func buildAdapters(cfg *config.Config, log *zap.SugaredLogger) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cc := cfg.Adapters.Chat; cc != nil {
		client := adapter.NewSlackClient(cc.Token, log.Named("slack"))
		chat, err := adapter.NewChatAdapter(client, cc.Rooms, log.Named("chat"))
		if err != nil {
			return nil, fmt.Errorf("failed to build chat adapter: %w", err)
		}
		adapters = append(adapters, chat)
	}

	if pc := cfg.Adapters.Paging; pc != nil {
		client, err := adapter.NewHTTPPagingClient(adapter.PagingClientConfig{
			EnqueueURL:    pc.EnqueueURL,
			LogEntriesURL: pc.LogEntriesURL,
			APIKey:        pc.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build paging client: %w", err)
		}
		levels := make([]adapter.PagingLevel, 0, len(pc.Levels))
		for _, l := range pc.Levels {
			levels = append(levels, adapter.PagingLevel{
				IntegrationKey: l.IntegrationKey,
				Severity:       l.Severity,
			})
		}
		paging, err := adapter.NewPagingAdapter(client, adapter.PagingAdapterConfig{
			Levels:           levels,
			OnlyOnEscalation: pc.OnlyOnEscalation,
			PollInterval:     pc.PollInterval,
			Source:           pc.Source,
		}, log.Named("paging"))
		if err != nil {
			return nil, fmt.Errorf("failed to build paging adapter: %w", err)
		}
		adapters = append(adapters, paging)
	}

	if mc := cfg.Adapters.Mail; mc != nil {
		gateway, err := adapter.NewHTTPMailGateway(adapter.MailGatewayConfig{
			BaseURL: mc.GatewayURL,
			Token:   mc.Token,
			From:    mc.From,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build mail gateway: %w", err)
		}
		mail, err := adapter.NewMailAdapter(gateway, adapter.MailAdapterConfig{
			Addresses:    mc.Addresses,
			PollInterval: mc.PollInterval,
			LookbackDays: mc.LookbackDays,
		}, log.Named("mail"))
		if err != nil {
			return nil, fmt.Errorf("failed to build mail adapter: %w", err)
		}
		adapters = append(adapters, mail)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters configured")
	}
	return adapters, nil
}
