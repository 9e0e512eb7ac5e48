package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/syncboard/internal/config"
	"github.com/Tyrowin/syncboard/internal/logging"
	"github.com/Tyrowin/syncboard/internal/server"
)

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	configFile string
	host       string
	port       int
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "syncboard",
		Short:         "SyncBoard shares text and files between devices on the local network",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.host, "host", config.DefaultHost, "interface to listen on")
	flags.IntVarP(&opts.port, "port", "p", config.DefaultPort, "port to listen on")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")

	return cmd
}

// loadConfig maps flags the user actually set onto config keys so they win
// over the file and environment.
func loadConfig(cmd *cobra.Command, opts rootOptions) (*config.Config, error) {
	overrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("host") {
		overrides["host"] = opts.host
	}
	if flags.Changed("port") {
		overrides["port"] = opts.port
	}
	if flags.Changed("log-level") {
		overrides["log.level"] = opts.logLevel
	}
	if flags.Changed("log-format") {
		overrides["log.format"] = opts.logFormat
	}

	return config.NewLoader(
		config.WithConfigFile(opts.configFile),
		config.WithOverrides(overrides),
	).Load()
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(registry)

	hub := server.NewHub(logger, metrics)
	go hub.Run()

	engine := server.NewEngine(cfg, hub, server.EngineOptions{Logger: logger, Metrics: metrics})
	handlers := server.NewHandlers(engine)
	handlers.BoardURL = server.BoardURL(cfg)

	httpServer := server.CreateServer(cfg.Addr(), server.SetupRoutes(handlers))

	printBanner(out, cfg, handlers.BoardURL)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-errCh:
		if hubErr := hub.Shutdown(shutdownTimeout); hubErr != nil {
			logger.Warn("hub shutdown", "error", hubErr)
		}
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	var errs []error
	if err := server.ShutdownServer(httpServer, shutdownTimeout, logger); err != nil {
		errs = append(errs, err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if err := <-errCh; err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func printBanner(out io.Writer, cfg *config.Config, boardURL string) {
	local := "http://" + net.JoinHostPort("localhost", strconv.Itoa(cfg.Port)) + "/"
	fmt.Fprintln(out, "SyncBoard is running")
	fmt.Fprintf(out, "  Local:   %s\n", local)
	fmt.Fprintf(out, "  Network: %s\n", boardURL)
	fmt.Fprintf(out, "  QR code: %sqr\n", boardURL)
	fmt.Fprintln(out, "Press Ctrl+C to stop")
}
