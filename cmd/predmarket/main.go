package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/predmarket/config"
	"github.com/alejandrodnm/predmarket/internal/adapters/clock"
	"github.com/alejandrodnm/predmarket/internal/adapters/notify"
	"github.com/alejandrodnm/predmarket/internal/adapters/storage"
	"github.com/alejandrodnm/predmarket/internal/adapters/token"
	"github.com/alejandrodnm/predmarket/internal/application/market"
	"github.com/alejandrodnm/predmarket/internal/application/scenario"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	scenarioPath := flag.String("scenario", "", "scenario file to run (overrides config)")
	memory := flag.Bool("memory", false, "use an in-memory database (nothing persisted)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", true, "print a full report for every market the scenario created")
	pace := flag.Float64("pace", -1, "scenario steps per second, 0 = no pause (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *memory {
		cfg.Storage.DSN = ":memory:"
	}
	if *scenarioPath != "" {
		cfg.Simulation.Scenario = *scenarioPath
	}
	if *pace >= 0 {
		cfg.Simulation.StepsPerSecond = *pace
	}
	setupLogger(cfg.Log)

	if cfg.Simulation.Scenario == "" {
		slog.Error("no scenario to run: pass -scenario or set simulation.scenario")
		os.Exit(1)
	}

	amounts, _ := cfg.MarketAmounts() // ya validado en Load
	start, _ := cfg.StartTime()
	if start.IsZero() {
		start = clock.System{}.Now()
	}

	slog.Info("predmarket starting",
		"config", *configPath,
		"scenario", cfg.Simulation.Scenario,
		"dsn", cfg.Storage.DSN,
		"start", start.Format(time.RFC3339),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, amounts, start, *report); err != nil {
		slog.Error("predmarket exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("predmarket stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, amounts config.Amounts, start time.Time, report bool) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	clk := clock.NewManual(start)

	ledger := token.NewLedger(store, clk)
	events, err := store.LedgerEvents(ctx)
	if err != nil {
		return err
	}
	if err := ledger.Replay(events); err != nil {
		return err
	}
	// El reloj simulado nunca retrocede respecto a lo ya persistido.
	if n := len(events); n > 0 {
		clk.Set(events[n-1].At)
	}

	svc, err := market.New(market.Config{
		Address:          cfg.MarketAddress(),
		Resolver:         cfg.ResolverAddress(),
		InitialLiquidity: amounts.InitialLiquidity,
		LiquidityParam:   amounts.LiquidityParam,
		ShareTick:        amounts.ShareTick,
	}, ledger, store, clk)
	if err != nil {
		return err
	}
	restored, err := svc.Restore(ctx)
	if err != nil {
		return err
	}
	if restored > 0 || len(events) > 0 {
		slog.Info("predmarket: resumed from storage", "markets", restored, "ledger_events", len(events))
	}

	script, err := scenario.Load(cfg.Simulation.Scenario)
	if err != nil {
		return err
	}

	console := notify.NewConsole(scenario.Labels(script, svc.Address(), svc.Resolver()))
	runner := scenario.NewRunner(svc, ledger, clk, console)
	runner.SetPace(cfg.Simulation.StepsPerSecond)

	res, err := runner.Run(ctx, script)
	if err != nil {
		return err
	}

	if report {
		printReports(ctx, svc, store, console, res.Markets)
	}
	return nil
}

// printReports imprime el reporte completo de cada mercado leyendo trades y
// claims desde el store.
func printReports(ctx context.Context, svc *market.Service, store *storage.SQLiteStorage, console *notify.Console, ids []uint64) {
	for _, id := range ids {
		snap, err := svc.Snapshot(id)
		if err != nil {
			slog.Warn("report: snapshot failed", "market", id, "err", err)
			continue
		}
		trades, err := store.GetTrades(ctx, id)
		if err != nil {
			slog.Warn("report: failed to load trades", "market", id, "err", err)
		}
		claims, err := store.GetClaims(ctx, id)
		if err != nil {
			slog.Warn("report: failed to load claims", "market", id, "err", err)
		}
		console.PrintMarketReport(notify.MarketReportInput{
			Snapshot: snap,
			Trades:   trades,
			Claims:   claims,
		})
	}
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
