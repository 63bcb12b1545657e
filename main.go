package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/pelageech/indexserv/config"
	"github.com/pelageech/indexserv/metrics"
	"github.com/pelageech/indexserv/responder"
	"github.com/pelageech/indexserv/server"
	"github.com/pelageech/indexserv/timer"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const logPrefix = "indexserv"

// Flag variables.
var (
	configPath, file, host, logLevel string
	certFile, keyFile                string
	port, metricsPort                int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexserv",
	Short: "Serves a single HTML file on \"/\" and 404 on every other path.",
	Args:  cobra.NoArgs,
	// errors are logged by RunE itself
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cfg, err := loadConfig(cmd)
		if err != nil {
			logger.Error("Invalid configuration", "err", err)
			return err
		}
		logger.SetLevel(parseLevel(cfg.LogLevel))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := run(ctx, cfg, logger); err != nil {
			logger.Error("Server terminated", "err", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to a json config file. Flags override its values.")
	rootCmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort,
		"Port to listen on.")
	rootCmd.Flags().StringVarP(&file, "file", "f", config.DefaultFile,
		"File served on \"/\", relative to the working directory.")
	rootCmd.Flags().StringVar(&host, "host", "",
		"Host to listen on. Empty means all interfaces.")
	rootCmd.Flags().IntVar(&metricsPort, "metrics-port", 0,
		"Port of the prometheus endpoint. 0 disables it.")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "v", "info",
		"One of debug, info, warn, error.")
	rootCmd.Flags().StringVar(&certFile, "cert", "",
		"TLS certificate file. Requires --key.")
	rootCmd.Flags().StringVar(&keyFile, "key", "",
		"TLS key file. Requires --cert.")
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	logger.SetPrefix(logPrefix)
	return logger
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// loadConfig merges defaults, the config file, the environment and the
// flags that were set explicitly, in this order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("file") {
		cfg.File = file
	}
	if flags.Changed("host") {
		cfg.Host = host
	}
	if flags.Changed("metrics-port") {
		cfg.MetricsPort = metricsPort
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("cert") {
		cfg.CertFile = certFile
	}
	if flags.Changed("key") {
		cfg.KeyFile = keyFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newHandler builds the responder wrapped in request timing and metrics.
func newHandler(cfg *config.Config, logger *log.Logger, m *metrics.Metrics) http.Handler {
	rs := responder.New(responder.Config{
		File:         cfg.File,
		CacheControl: cfg.CacheControl,
	}, logger, m)

	return timer.MakeRequestTimeTracker(rs,
		timer.LogSaver(logger),
		func(r timer.Record) { m.ObserveRequest(r.Status, r.Size) },
	)
}

func serverOptions(cfg *config.Config) server.Options {
	opts := server.Options{
		ReadTimeout:     cfg.ReadTimeout.Std(),
		WriteTimeout:    cfg.WriteTimeout.Std(),
		IdleTimeout:     cfg.IdleTimeout.Std(),
		ShutdownTimeout: cfg.ShutdownTimeout.Std(),
	}
	if cfg.TLS() {
		opts.CertFile = cfg.CertFile
		opts.KeyFile = cfg.KeyFile
	}
	return opts
}

// run binds every listener before serving, so a taken port fails
// startup instead of leaving a half-running process.
func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	if _, err := os.Stat(cfg.File); err != nil {
		logger.Warn("Served file is not readable yet, \"/\" will answer 404", "file", cfg.File, "err", err)
	}

	m := metrics.New()
	servers := []*server.Server{
		server.New(cfg.Address(), newHandler(cfg, logger, m), serverOptions(cfg), logger.With("listener", "http")),
	}
	if addr := cfg.MetricsAddress(); addr != "" {
		servers = append(servers, server.New(addr, m.Handler(), server.Options{
			ShutdownTimeout: cfg.ShutdownTimeout.Std(),
		}, logger.With("listener", "metrics")))
	}

	for i, s := range servers {
		if err := s.Listen(); err != nil {
			for _, bound := range servers[:i] {
				bound.Close()
			}
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddress() != "" {
		g.Go(func() error {
			m.Observe(ctx, metrics.DefaultObservePeriod)
			return nil
		})
	}
	for _, s := range servers {
		s := s
		g.Go(func() error {
			return s.Serve(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
