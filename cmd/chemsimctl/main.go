package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"chemsim/internal/config"
	"chemsim/internal/logging"
	"chemsim/internal/metrics"
	"chemsim/pkg/chemsim"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chemsimctl",
		Short: "Simulate chemical reaction networks",
		Long: `chemsimctl runs deterministic and stochastic simulations of the
built-in reaction networks and keeps a ledger of every run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "log level: error|warn|info|debug|trace")
	rootCmd.PersistentFlags().String("store", "", "ledger backend: memory|sqlite")
	rootCmd.PersistentFlags().String("db-path", "", "sqlite database path")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimulateCmd(),
		newSimulatorsCmd(),
		newNetworksCmd(),
		newRunsCmd(),
		newShowCmd(),
		newSteadyStateCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chemsimctl version %s\n", version)
			return nil
		},
	}
}

// loadConfig layers the configuration: defaults adjusted by suggest, or the
// --config file when one is given, then CHEMSIM_* variables, then the global
// flags. Command flags are applied by the caller.
func loadConfig(cmd *cobra.Command, suggest func(*config.Config)) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	} else if suggest != nil {
		suggest(cfg)
	}
	cfg.ApplyEnv()

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Kind = v
	}
	if v, _ := cmd.Flags().GetString("db-path"); v != "" {
		cfg.Store.SQLitePath = v
	}
	return cfg, nil
}

// app bundles the client and the optional metrics endpoint of one command.
type app struct {
	client *chemsim.Client
	logger *slog.Logger
	server *http.Server
}

func newApp(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (*app, error) {
	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())

	a := &app{logger: logger}
	var recorder *metrics.Recorder
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		recorder = metrics.NewRecorder(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		a.server = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	client, err := chemsim.New(chemsim.Options{
		StoreKind: cfg.Store.Kind,
		DBPath:    cfg.Store.SQLitePath,
		Logger:    logger,
		Metrics:   recorder,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.client = client
	if err := client.Init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
