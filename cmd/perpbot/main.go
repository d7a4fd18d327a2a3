package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alejandrodnm/perpbot/config"
	"github.com/alejandrodnm/perpbot/internal/adapters/notify"
	"github.com/alejandrodnm/perpbot/internal/adapters/paper"
	"github.com/alejandrodnm/perpbot/internal/adapters/perps"
	"github.com/alejandrodnm/perpbot/internal/adapters/storage"
	"github.com/alejandrodnm/perpbot/internal/application/engine"
	"github.com/alejandrodnm/perpbot/internal/ports"
	"github.com/alejandrodnm/perpbot/internal/strategy"
)

// store es lo que el engine necesita de un backend de persistencia.
type store interface {
	ports.StateStore
	ports.HistoryStore
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	strategyName := flag.String("strategy", "", "strategy to run (overrides config)")
	once := flag.Bool("once", false, "run one cycle and exit")
	dryRun := flag.Bool("dry-run", false, "paper trading: real market data, simulated executions")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full tables per run (default: compact 1-line)")
	report := flag.Bool("report", false, "print open positions and trade history, then exit")
	list := flag.Bool("list", false, "list available strategies and exit")
	flag.Parse()

	strategies := strategy.Default()

	if *list {
		printStrategies(strategies)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *strategyName != "" {
		cfg.Strategy.Name = *strategyName
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	name := cfg.Strategy.Name
	strat, err := strategies.Build(name, strategy.Params(cfg.StrategyParams(name)))
	if err != nil {
		slog.Error("failed to build strategy", "err", err, "available", strategies.Names())
		os.Exit(1)
	}

	slog.Info("perpbot starting",
		"config", *configPath,
		"strategy", name,
		"interval", cfg.Interval(),
		"dry_run", *dryRun,
		"once", *once,
		"backend", cfg.Storage.HistoryBackend,
	)

	st, err := openStore(cfg, *dryRun)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "backend", cfg.Storage.HistoryBackend)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	perpsCfg := perps.Config{
		LCDBase:         cfg.Perps.LCDBase,
		GatewayBase:     cfg.Perps.GatewayBase,
		Contract:        cfg.Perps.Contract,
		CollateralDenom: cfg.Perps.CollateralDenom,
		Timeout:         cfg.Timeout(),
	}
	market := perps.NewClient(perpsCfg)

	notifier := notify.NewConsole(*table)

	if *report {
		runReport(ctx, name, st, market, notifier)
		return
	}

	var trader ports.Trader
	if *dryRun {
		pt := paper.NewTrader(market, cfg.Paper.InitialBalance)
		saved, err := st.Load(ctx, name)
		if err != nil {
			slog.Error("failed to load paper state", "err", err)
			os.Exit(1)
		}
		pt.Restore(saved.Positions)
		trader = pt
	} else {
		if err := cfg.ValidateLive(); err != nil {
			slog.Error("live trading not configured", "err", err)
			os.Exit(1)
		}
		tc, err := perps.NewTradingClient(perpsCfg, cfg.Perps.PrivateKey)
		if err != nil {
			slog.Error("failed to create trading client", "err", err)
			os.Exit(1)
		}
		slog.Info("wallet loaded", "address", tc.Address())
		trader = tc
	}

	engCfg := engine.Config{
		Leverage:           cfg.Strategy.Leverage,
		CollateralUSDC:     cfg.Strategy.CollateralUSDC,
		CollateralFraction: cfg.Strategy.CollateralFraction,
		MinCollateral:      cfg.MinCollateral(),
		MaxPositions:       cfg.Strategy.MaxPositions,
		EnabledAssets:      cfg.Strategy.EnabledAssets,
		BlacklistFor:       cfg.BlacklistFor(),
		TakeProfitPct:      cfg.Strategy.TakeProfitPct,
		StopLossPct:        cfg.Strategy.StopLossPct,
		MaxHold:            cfg.MaxHold(),
		OpenDelay:          cfg.OpenDelay(),
		OpenWaitBlocks:     cfg.Strategy.OpenWaitBlocks,
		RetryDelay:         cfg.RetryDelay(),
		RetryAttempts:      *cfg.Strategy.RetryAttempts,
		HistoryLength:      cfg.Strategy.HistoryLength,
		Interval:           cfg.Interval(),
		StopFile:           cfg.Strategy.StopFile,
		Once:               *once,
	}
	if *dryRun {
		// no hay secuencia de cuenta que esperar
		engCfg.OpenDelay = 0
		engCfg.OpenWaitBlocks = 0
	}

	eng := engine.New(engCfg, strat, market, trader, st, st, notifier)
	if !*dryRun && cfg.Perps.RPCWebsocket != "" && cfg.Strategy.OpenWaitBlocks > 0 {
		eng.SetBlockWaiter(perps.NewBlockWatcher(cfg.Perps.RPCWebsocket))
	}

	if *once {
		slog.Info("single run mode")
	} else {
		slog.Info("trading loop started, press Ctrl+C or create the stop file to exit", "stop_file", cfg.Strategy.StopFile)
	}

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("perpbot stopped cleanly")
}

// openStore abre el backend configurado. En -dry-run usa un subdirectorio
// propio para no mezclar posiciones simuladas con las reales.
func openStore(cfg *config.Config, dryRun bool) (store, error) {
	dir := cfg.Storage.CacheDir
	dsn := cfg.Storage.DSN
	if dryRun {
		dir = filepath.Join(dir, "paper")
		if dsn != ":memory:" {
			dsn = filepath.Join(dir, filepath.Base(dsn))
		}
	}

	switch cfg.Storage.HistoryBackend {
	case "sqlite":
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create %s: %w", filepath.Dir(dsn), err)
			}
		}
		return storage.NewSQLiteStorage(dsn, cfg.LockStaleAfter())
	default:
		return storage.NewJSONStore(dir, cfg.LockStaleAfter())
	}
}

func printStrategies(r strategy.Registry) {
	var rows []notify.StrategyInfo
	for _, name := range r.Names() {
		s, err := r.Build(name, nil)
		if err != nil {
			continue
		}
		rows = append(rows, notify.StrategyInfo{Name: name, Description: s.Description()})
	}
	notify.NewConsole(false).PrintStrategies(rows)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
