package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowmill/flowmill/config"
	"github.com/flowmill/flowmill/pkg/api"
	"github.com/flowmill/flowmill/pkg/api/handlers"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/eventbus"
	"github.com/flowmill/flowmill/pkg/logger"
	"github.com/flowmill/flowmill/pkg/metrics"
	"github.com/flowmill/flowmill/pkg/storage"
	"github.com/flowmill/flowmill/pkg/storage/badger"
	"github.com/flowmill/flowmill/pkg/storage/memory"
	"github.com/flowmill/flowmill/pkg/telemetry/tracing"
	"github.com/flowmill/flowmill/pkg/version"
	"github.com/flowmill/flowmill/pkg/worker"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
	watchFlag  = flag.Bool("watch", false, "Reload configuration on file changes")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("starting flowmill",
		"version", version.Version,
		"build_time", version.BuildTime,
		"git_commit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	var store storage.Storage
	switch cfg.Storage.Type {
	case "badger":
		store, err = badger.New(&badger.Config{
			Path:             cfg.Storage.Badger.Path,
			SyncWrites:       cfg.Storage.Badger.SyncWrites,
			ValueLogFileSize: cfg.Storage.Badger.ValueLogFileSize,
		})
		if err != nil {
			log.Error("failed to open badger storage", "error", err, "path", cfg.Storage.Badger.Path)
			os.Exit(1)
		}
		log.Info("initialized badger storage", "path", cfg.Storage.Badger.Path)
	default:
		store = memory.New()
		log.Info("initialized memory storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("error closing storage", "error", err)
		}
	}()

	metricsManager := metrics.NewManager(metrics.Config{
		Enabled:                 cfg.Metrics.Enabled,
		Port:                    cfg.Metrics.Port,
		Path:                    cfg.Metrics.Path,
		WorkflowDurationBuckets: metrics.DefaultConfig().WorkflowDurationBuckets,
		StepDurationBuckets:     metrics.DefaultConfig().StepDurationBuckets,
		HTTPDurationBuckets:     metrics.DefaultConfig().HTTPDurationBuckets,
	})
	if metricsManager.Enabled() {
		go func() {
			log.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	registry := worker.NewRegistry()
	registerBuiltinWorkers(log, registry)

	bus := eventbus.NewBus()

	eng := engine.New(registry,
		engine.WithConfig(engine.Config{
			BackoffBase:          cfg.Engine.BackoffBase,
			PollInterval:         cfg.Engine.PollInterval,
			MaxRetainedWorkflows: cfg.Engine.MaxRetainedWorkflows,
		}),
		engine.WithStorage(store),
		engine.WithMetrics(metricsManager),
		engine.WithEventBus(bus),
		engine.WithLogger(log),
	)

	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	go func() {
		if err := wsHandler.StartEventBridge(ctx, bus); err != nil && err != context.Canceled {
			log.Warn("event bridge stopped", "error", err)
		}
	}()

	httpServer := api.NewHTTPServer(cfg, log, &api.Handlers{
		Workflow:  handlers.NewWorkflowHandler(eng, log),
		Template:  handlers.NewTemplateHandler(eng, log),
		Health:    handlers.NewHealthHandler(eng),
		WebSocket: wsHandler,
		Metrics:   metricsManager,
	})

	if *watchFlag && *configPath != "" {
		startConfigWatcher(ctx, *configPath, log)
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("starting http server", "address", cfg.Server.ListenAddr())
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("flowmill is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
	)

	select {
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErrChan:
		log.Error("http server error", "error", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("shutting down http server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down http server", "error", err)
	}

	wsHandler.Close()
	cancel()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("error shutting down tracing", "error", err)
	}

	log.Info("flowmill stopped gracefully")
}

// registerBuiltinWorkers installs the utility workers shipped with the
// server binary. Domain workers are registered by embedding applications.
func registerBuiltinWorkers(log logger.Logger, registry *worker.Registry) {
	builtins := []*worker.Func{
		{
			WorkerName: "noop",
			Types:      []string{"noop"},
			Fn: func(ctx context.Context, task *worker.Task) (*worker.Result, error) {
				return &worker.Result{Success: true}, nil
			},
		},
		{
			WorkerName: "echo",
			Types:      []string{"echo"},
			Fn: func(ctx context.Context, task *worker.Task) (*worker.Result, error) {
				return &worker.Result{Success: true, Data: task.Payload}, nil
			},
		},
		{
			WorkerName: "delay",
			Types:      []string{"delay"},
			Fn: func(ctx context.Context, task *worker.Task) (*worker.Result, error) {
				d := time.Second
				if raw, ok := task.Payload["duration"].(string); ok {
					if parsed, err := time.ParseDuration(raw); err == nil {
						d = parsed
					}
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(d):
					return &worker.Result{Success: true, Data: map[string]any{"slept": d.String()}}, nil
				}
			},
		},
	}

	for _, w := range builtins {
		if err := registry.Register(w); err != nil {
			log.Warn("builtin worker not registered", "worker", w.WorkerName, "error", err)
		}
	}
	log.Info("builtin workers registered", "count", registry.Count())
}

// startConfigWatcher hot-reloads the settings that can change at runtime,
// currently the log level.
func startConfigWatcher(ctx context.Context, path string, log logger.Logger) {
	watcher, err := config.NewWatcher(path, config.WithWatcherLogger(log))
	if err != nil {
		log.Warn("config watcher not started", "error", err)
		return
	}

	watcher.OnChange(func(updated *config.Config) {
		log.SetLevel(logger.ParseLevel(updated.Log.Level))
		log.Info("configuration reloaded", "log_level", updated.Log.Level)
	})

	go func() {
		if err := watcher.Watch(ctx); err != nil {
			log.Warn("config watcher stopped", "error", err)
		}
	}()
}

func buildOverrides() map[string]any {
	overrides := make(map[string]any)

	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("flowmill - DAG workflow execution engine\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("flowmill - DAG workflow execution engine\n\n")
	fmt.Printf("Usage: flowmill [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  flowmill                                  # Run with default config\n")
	fmt.Printf("  flowmill -config config.yaml              # Use specific config file\n")
	fmt.Printf("  flowmill -port 9090 -log-level debug      # Override specific options\n")
	fmt.Printf("  flowmill -config config.yaml -watch       # Hot-reload log level on change\n")
	fmt.Printf("  flowmill -version                         # Print version info\n")
}
