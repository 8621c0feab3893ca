package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jwtly10/tradegate/internal/backtest"
	"github.com/jwtly10/tradegate/internal/config"
	"github.com/jwtly10/tradegate/internal/engine"
	"github.com/jwtly10/tradegate/internal/logging"
	"github.com/jwtly10/tradegate/internal/metrics"
	"github.com/jwtly10/tradegate/internal/oanda"
	"github.com/jwtly10/tradegate/internal/publish"
	"github.com/jwtly10/tradegate/internal/snapshot"
	"github.com/jwtly10/tradegate/internal/tradingview"
	"github.com/jwtly10/tradegate/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

const initialBalance = 10000

func main() {
	configPath := flag.String("config", "config/tradegate.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	logging.Configure(cfg.Logging.Level, cfg.Logging.Topics)
	slog.Info("Loaded config", "env", cfg.Environment, "symbols", cfg.Symbols, "snapshot", cfg.Snapshot.Backend, "sink", cfg.Publish.Sink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Oanda.AccountID == "" || cfg.Oanda.APIKey == "" {
		return errors.New("OANDA_ACCOUNT_ID and OANDA_API_KEY must be set")
	}

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	if cfg.Metrics.Enabled {
		srv := metrics.Serve(cfg.Metrics.Addr, reg)
		defer srv.Close()
		slog.Info("Serving metrics", "addr", cfg.Metrics.Addr)
	}

	instance := "tradegate-" + cfg.Environment
	store, closeStore, err := openStore(ctx, cfg, instance)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, err := openSink(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()
	sink = &countingSink{Sink: sink, name: cfg.Publish.Sink, rec: rec}

	var prior *snapshot.Snapshot
	if store != nil {
		prior, err = store.Load(ctx)
		switch {
		case errors.Is(err, snapshot.ErrNoSnapshot):
			slog.Info("No prior snapshot", "instance", instance)
		case err != nil:
			return fmt.Errorf("load snapshot: %w", err)
		}
	}

	opts := []engine.Option{engine.WithVerifier(cfg.Verifier), engine.WithMetrics(rec)}
	if prior != nil {
		opts = append(opts, engine.WithInstanceID(prior.InstanceID))
	}
	eng, err := engine.New(cfg.Engine, opts...)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	var governor json.RawMessage
	if prior != nil {
		if err := eng.Restore(*prior); err != nil {
			slog.Warn("Ignoring unusable snapshot", "instance", instance, "error", err)
		} else {
			governor = prior.Governor
			slog.Info("Restored snapshot", "instance", prior.InstanceID, "saved_at", time.UnixMilli(prior.SavedAt).UTC(), "symbols", len(prior.Symbols))
		}
	}

	checkpoint := func(ctx context.Context, now int64) error {
		if store == nil {
			return nil
		}
		snap := eng.Export(now)
		snap.Governor = governor
		return store.Save(ctx, &snap)
	}

	client := oanda.NewOandaService(cfg.Oanda.AccountID, cfg.Oanda.APIKey, cfg.Oanda.BaseURL)
	for _, symbol := range cfg.Symbols {
		if err := replaySymbol(ctx, cfg, client, eng, sink, rec, checkpoint, symbol); err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
	}
	return nil
}

func replaySymbol(ctx context.Context, cfg *config.Config, client *oanda.OandaService, eng *engine.Engine, sink publish.Sink, rec *metrics.Recorder, checkpoint func(context.Context, int64) error, symbol string) error {
	instrument, ok := cfg.Oanda.Instruments[symbol]
	if !ok {
		instrument = symbol
	}
	granularity, err := oanda.GranularityFor(cfg.Replay.Timeframe)
	if err != nil {
		return err
	}

	to := time.Now()
	bars, err := client.FetchBars(ctx, oanda.CandleRequest{
		Instrument:  oanda.InstrumentName(instrument),
		Granularity: granularity,
		From:        to.Add(-cfg.Replay.Lookback),
		To:          to,
	})
	if err != nil {
		return fmt.Errorf("fetch bars: %w", err)
	}
	slog.Info("Loaded bars", "symbol", symbol, "instrument", instrument, "count", len(bars))

	if _, restored := eng.Phase(symbol); !restored {
		n := min(cfg.Replay.WarmupBars, len(bars))
		bundle := engine.WarmupBundle{
			Symbol: symbol,
			Source: "oanda:" + instrument,
			Bars:   map[types.Timeframe][]types.Bar{cfg.Replay.Timeframe: bars[:n]},
		}
		if err := eng.WarmupHistory(bundle); err != nil {
			return fmt.Errorf("warm up: %w", err)
		}
		bars = bars[n:]
	}

	replay := backtest.NewEngine(symbol, cfg.Replay.Timeframe, bars, initialBalance,
		backtest.WithSink(sink),
		backtest.WithTickObserver(rec.ObserveTick),
		backtest.WithCheckpoint(cfg.Snapshot.Interval, checkpoint),
	)
	results, err := replay.Run(ctx, eng)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	stats := results.Calculate()
	stats.Print()

	fmt.Println()
	results.PrintTradesBetween(len(results.Trades)-cfg.Replay.MaxPrinted, len(results.Trades))

	tradingview.DumpPineScript(results.Trades)
	if cfg.Replay.ExportPath != "" {
		if err := os.MkdirAll(cfg.Replay.ExportPath, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
		path := filepath.Join(cfg.Replay.ExportPath, symbol+".pine")
		if err := tradingview.WritePineScript(path, results.Trades); err != nil {
			return err
		}
		slog.Info("Exported play markers", "symbol", symbol, "path", path)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, instance string) (snapshot.Store, func(), error) {
	switch cfg.Snapshot.Backend {
	case "file":
		return snapshot.NewFileStore(cfg.Snapshot.Path), func() {}, nil
	case "redis":
		s := snapshot.NewRedisStore(cfg.Snapshot.Redis, instance)
		return s, func() { s.Close() }, nil
	case "postgres":
		pool, err := snapshot.NewPool(ctx, cfg.Snapshot.Postgres.URL, cfg.Snapshot.Postgres.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		if err := snapshot.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return snapshot.NewPostgresStore(pool, instance), pool.Close, nil
	}
	return nil, func() {}, nil
}

func openSink(cfg *config.Config) (publish.Sink, error) {
	switch cfg.Publish.Sink {
	case "log":
		return publish.NewLogSink(slog.Default()), nil
	case "kafka":
		return publish.NewKafkaSink(cfg.Publish.Kafka)
	}
	return publish.Discard{}, nil
}

// countingSink records failed publishes per sink.
type countingSink struct {
	publish.Sink
	name string
	rec  *metrics.Recorder
}

func (c *countingSink) Publish(ctx context.Context, events []types.Event) error {
	err := c.Sink.Publish(ctx, events)
	if err != nil {
		c.rec.PublishFailed(c.name)
	}
	return err
}
