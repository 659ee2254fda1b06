package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"binance-ats/config"
	"binance-ats/internal/api"
	"binance-ats/internal/binance"
	"binance-ats/internal/cache"
	"binance-ats/internal/events"
	"binance-ats/internal/logging"
	"binance-ats/internal/metrics"
	"binance-ats/internal/notification"
	"binance-ats/internal/overlay"
	"binance-ats/internal/pool"
	"binance-ats/internal/risk"
	"binance-ats/internal/runner"
	"binance-ats/internal/scanner"
	"binance-ats/internal/store"
	"binance-ats/internal/vault"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	poolRefresh  bool
	overlayLimit int
	vaultAPIKey  string
	vaultSecret  string
)

var rootCmd = &cobra.Command{
	Use:   "ats",
	Short: "Hourly Binance USDT-M futures breakout scanner",
	Long: `ats scans a daily pool of USDT-margined perpetuals once per hour, scores
each symbol, runs the four entry gates and turns survivors into entry ladders.
Orders are only sent when TRADING_ENABLED=true and DRY_RUN=false.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the hourly scan loop and the status API",
	RunE:  runLoop,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan pass and print the summary",
	RunE:  runScanOnce,
}

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Print today's base pool",
	RunE:  runPool,
}

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Print the hottest overlay symbols",
	RunE:  runOverlay,
}

var sampleConfigCmd = &cobra.Command{
	Use:   "sample-config [path]",
	Short: "Write a sample parameter document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.GenerateSampleConfig(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var vaultStoreCmd = &cobra.Command{
	Use:   "vault-store",
	Short: "Store exchange credentials in Vault",
	RunE:  runVaultStore,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the parameter document")

	poolCmd.Flags().BoolVar(&poolRefresh, "refresh", false, "Rebuild the pool from fresh tickers")
	overlayCmd.Flags().IntVar(&overlayLimit, "limit", 0, "Number of entries (default overlay.limit)")
	vaultStoreCmd.Flags().StringVar(&vaultAPIKey, "api-key", "", "Exchange API key")
	vaultStoreCmd.Flags().StringVar(&vaultSecret, "secret-key", "", "Exchange secret key")
	vaultStoreCmd.MarkFlagRequired("api-key")
	vaultStoreCmd.MarkFlagRequired("secret-key")

	rootCmd.AddCommand(runCmd, scanCmd, poolCmd, overlayCmd, sampleConfigCmd, vaultStoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runLoop(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	var server *api.Server
	if a.cfg.ServerConfig.Enabled {
		server = api.NewServer(a.cfg.ServerConfig, a.cfg.OverlayConfig, api.Deps{
			Store:    a.store,
			Scanner:  a.scanner,
			Overlay:  a.overlay,
			Cache:    a.cache,
			Bus:      a.bus,
			Metrics:  a.metrics,
			Budget:   a.guard,
			Breaker:  a.client.BreakerState,
			Switches: risk.LoadSwitches,
		})
		go func() {
			if err := server.Start(); err != nil {
				a.logger.Error("status API stopped", "error", err)
			}
		}()
	}

	if err := a.scanner.Run(ctx); err != nil {
		return err
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ServerConfig.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", "error", err)
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}

func runScanOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.client.SyncTime(ctx); err != nil {
		a.logger.Warn("server time sync failed", "error", err)
	}
	res, err := a.scanner.ScanOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Summary)
	return nil
}

func runPool(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now()
	var snap *pool.Snapshot
	if poolRefresh {
		snap, err = a.daily.Refresh(ctx, now)
	} else {
		snap, err = a.daily.Get(ctx, now)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "#\tSYMBOL\tCHANGE %%\tQUOTE VOLUME\n")
	for i, c := range snap.Candidates {
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%.0f\n", i+1, c.Symbol, c.ChangePct, c.QuoteVolume)
	}
	w.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "pool %s: %d symbols (snapshot in %s)\n", snap.Date, len(snap.Symbols), pool.SnapshotPath(a.cfg.PoolConfig.SnapshotDir, snap.Date))
	return nil
}

func runOverlay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	limit := overlayLimit
	if limit <= 0 {
		limit = a.cfg.OverlayConfig.Limit
	}
	entries, err := a.overlay.Entries(ctx, limit, a.cfg.OverlayConfig.MinHeat)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func runVaultStore(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	vc, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return err
	}
	if err := vc.StoreCredentials(cmd.Context(), vault.Credentials{APIKey: vaultAPIKey, SecretKey: vaultSecret}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "credentials stored at %s/data/%s\n", cfg.VaultConfig.MountPath, cfg.VaultConfig.SecretPath)
	return nil
}

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    store.Store
	cache    cache.Cache
	client   *binance.Client
	metrics  *metrics.Metrics
	bus      *events.EventBus
	notifier *notification.Manager
	tickers  *pool.TickerCache
	daily    *pool.Daily
	overlay  *overlay.Overlay
	guard    *risk.Guard
	runner   *runner.Runner
	scanner  *scanner.Scanner
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)

	st, err := store.Open(ctx, cfg.DatabaseConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		cache:   cache.NewFromConfig(ctx, cfg.RedisConfig),
		metrics: metrics.New(),
		bus:     events.NewEventBus(),
	}

	vc, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts := binance.OptionsFromConfig(cfg.BinanceConfig)
	creds, err := vc.Credentials(ctx, cfg.BinanceConfig)
	switch {
	case errors.Is(err, vault.ErrNoCredentials):
		logger.Warn("no exchange credentials, live orders unavailable")
	case err != nil:
		a.Close()
		return nil, err
	default:
		opts.APIKey, opts.SecretKey = creds.APIKey, creds.SecretKey
		logger.Info("exchange credentials loaded", "source", creds.Source)
	}
	opts.Observer = a.metrics
	a.client = binance.NewClient(opts)

	a.notifier = notification.NewFromConfig(cfg.NotificationConfig)
	a.notifier.SetMute(func() bool { return risk.LoadSwitches().NotifyMute })

	a.tickers = pool.NewTickerCache(a.client, a.cache, cfg.PoolConfig.TickerTTL)
	a.daily = pool.NewDaily(a.tickers, a.cache, cfg.PoolConfig)
	a.daily.SetPublisher(a.notifier)
	a.overlay = overlay.New(st)
	a.guard = risk.NewGuard(st, cfg.RunnerConfig)
	a.runner = runner.New(a.client, st, a.guard, a.bus, cfg.RunnerConfig)
	a.scanner = scanner.New(scanner.Deps{
		Market:   a.client,
		Daily:    a.daily,
		Tickers:  a.tickers,
		Overlay:  a.overlay,
		Executor: a.runner,
		Guard:    a.guard,
		Notifier: a.notifier,
		Bus:      a.bus,
		Metrics:  a.metrics,
	}, cfg)

	sw := risk.LoadSwitches()
	logger.Info("ats initialised",
		"mode", sw.Mode(),
		"interval", cfg.SamplingConfig.Interval,
		"database", cfg.DatabaseConfig.Driver,
		"redis", cfg.RedisConfig.Enabled,
		"vault", cfg.VaultConfig.Enabled)
	return a, nil
}

func (a *app) Close() {
	if c, ok := a.cache.(io.Closer); ok {
		c.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}
}
