package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimtab/dimtab/internal/bridge"
	"github.com/dimtab/dimtab/internal/clock"
	"github.com/dimtab/dimtab/internal/config"
	"github.com/dimtab/dimtab/internal/controller"
	"github.com/dimtab/dimtab/internal/metrics"
	"github.com/dimtab/dimtab/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the dimtab daemon",
	Long:  `Start the dimtab daemon with the extension bridge and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration; an unavailable config provider is recovered
	// by falling back to built-in defaults, logged once.
	cfg, cfgErr := config.Load(configPath)
	if cfgErr != nil {
		cfg = config.Default()
	}

	// Setup logger
	logger := setupLogger(cfg)
	log.Logger = logger

	if cfgErr != nil {
		logger.Warn().
			Err(cfgErr).
			Str("config", configPath).
			Msg("Configuration unavailable, using built-in defaults")
	}

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Int("tracked_sites", len(cfg.TrackedSites)).
		Dur("timeout", cfg.Timeout()).
		Msg("Starting dimtab")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize the controller
	ctrl, err := controller.New(cfg, clock.RealClock{}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize controller")
	}
	defer ctrl.Close()

	// Start metrics server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.ListenAddr, logger)
		if sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start metrics server")
		}
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Error().Err(err).Msg("Failed to stop metrics server")
			}
		}()
	}

	// Start the extension bridge
	bridgeServer := bridge.NewServer(bridge.Config{ListenAddr: cfg.Bridge.ListenAddr}, ctrl, logger)
	if sdListeners.Bridge != nil {
		bridgeServer.SetListener(sdListeners.Bridge)
	}
	if err := bridgeServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start bridge server")
	}
	defer func() {
		if err := bridgeServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop bridge server")
		}
	}()

	// Tell systemd we are ready
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd readiness")
	}

	logger.Info().
		Str("bridge", cfg.Bridge.ListenAddr).
		Msg("dimtab started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd stopping")
	}

	return nil
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg *config.Config) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Logging.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	if cfg.DebugLogging {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	var logger zerolog.Logger
	if cfg.Logging.Format == "console" {
		logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	return logger
}
