package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/internal/telemetry"
	"github.com/marmos91/lockfs/pkg/api"
	"github.com/marmos91/lockfs/pkg/config"
	"github.com/marmos91/lockfs/pkg/server"
	"github.com/marmos91/lockfs/pkg/transport/udp"
)

var (
	foreground bool
	startPort  int
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the LockFS server",
	Long: `Start the LockFS server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Without --config the default file at $XDG_CONFIG_HOME/lockfs/config.yaml is
used when it exists, and built-in defaults otherwise.

Examples:
  # Start in foreground on the default port
  lockfs start --foreground

  # Start on a specific UDP port
  lockfs start --foreground --port 7050

  # Start with environment variable overrides
  LOCKFS_SERVER_FAULT_DROP_REPLY=0.2 lockfs start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().IntVarP(&startPort, "port", "p", 0, "UDP port (overrides server.port)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/lockfs/lockfs.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/lockfs/lockfs.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = startPort
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", configSource(cfgPath))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	metricsResult := config.InitializeMetrics(cfg)

	store, err := config.CreateStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Storage close error", logger.Err(err))
		}
	}()

	engineOpts, err := cfg.Server.EngineOptions()
	if err != nil {
		return err
	}
	engineOpts = append(engineOpts, server.WithMetrics(metricsResult.Engine))
	engine := server.NewEngine(store, engineOpts...)

	if cfg.Server.Fault.Enabled() {
		logger.Warn("Fault injection enabled",
			"drop_request", cfg.Server.Fault.DropRequest,
			"drop_reply", cfg.Server.Fault.DropReply,
			"seed", cfg.Server.Fault.Seed)
	}

	udpServer := udp.NewServer(udp.Config{
		BindAddress: cfg.Server.BindAddress,
		Port:        cfg.Server.Port,
		ReadTimeout: cfg.Transport.ReadTimeout,
		RateLimit: udp.RateLimitConfig{
			RequestsPerSecond: cfg.Transport.RateLimit.RequestsPerSecond,
			Burst:             cfg.Transport.RateLimit.Burst,
		},
	}, engine, udp.WithMetrics(metricsResult.Transport))

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	if cfgPath != "" {
		config.WatchLogging(cfgPath, func(l config.LoggingConfig) {
			logger.SetLevel(l.Level)
			logger.SetFormat(l.Format)
		})
	}

	auxErr := make(chan error, 2)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				auxErr <- err
			}
		}()
	}
	if cfg.API.IsEnabled() {
		apiServer := api.NewServer(cfg.API, engine)
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				auxErr <- err
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- udpServer.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.",
		"port", cfg.Server.Port,
		"storage", store.Type(),
		"seek_policy", cfg.Server.SeekPolicy)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		cancel()
		var fatal *server.FatalError
		if errors.As(err, &fatal) {
			logger.Error("Fatal server error, exiting", "kind", fatal.Kind.String(), logger.Err(err))
			return err
		}
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			return err
		}
		logger.Info("Server stopped")

	case err := <-auxErr:
		cancel()
		udpServer.Stop()
		<-serverDone
		logger.Error("Auxiliary server failed", logger.Err(err))
		return err
	}

	return nil
}

// configSource describes where the config was loaded from.
func configSource(path string) string {
	if path != "" {
		return path
	}
	return "defaults"
}
