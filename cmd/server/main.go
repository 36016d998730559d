package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nathanyu/algo-trading/internal/config"
	"github.com/nathanyu/algo-trading/internal/domain"
	"github.com/nathanyu/algo-trading/internal/exchange"
	"github.com/nathanyu/algo-trading/internal/handler"
	"github.com/nathanyu/algo-trading/internal/journal"
	"github.com/nathanyu/algo-trading/internal/marketdata"
	"github.com/nathanyu/algo-trading/internal/middleware"
	"github.com/nathanyu/algo-trading/internal/strategy"
	"github.com/nathanyu/algo-trading/internal/stream"
	"github.com/nathanyu/algo-trading/internal/telemetry"
)

const serviceName = "algo-trading"

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	telemetry.InitLogger(serviceName, cfg.Logging.Level)
	slog.Info("starting trading service",
		"symbols", cfg.Trading.Symbols,
		"initial_capital", cfg.Trading.InitialCapital,
	)

	if cfg.Tracing.Enabled {
		cleanup, err := telemetry.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
		if err != nil {
			log.Fatalf("initializing tracer: %v", err)
		}
		defer cleanup()
	}

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: serviceName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			slog.Warn("continuous profiling disabled", "error", err)
		} else {
			defer profiler.Stop()
		}
	}

	// --- Persistence and streaming (both optional) ---

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("opening trade journal: %v", err)
		}
		defer jnl.Close()
		slog.Info("trade journal enabled", "path", cfg.Journal.Path)
	}

	var publisher *stream.Publisher
	if cfg.NATS.Enabled {
		publisher, err = stream.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Fatalf("connecting to NATS: %v", err)
		}
		defer publisher.Close()
	}

	// --- Trading core ---

	ex := exchange.New(exchange.Config{
		InitialCapital:     cfg.Trading.InitialCapital,
		CommissionPerShare: cfg.Trading.CommissionPerShare,
	})

	// Settlement fan-out: the journal and the stream consume off the
	// order path, so a slow disk or broker never stalls matching.
	done := make(chan struct{})
	go func() {
		for {
			select {
			case s := <-ex.Settlements():
				if jnl != nil {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					if err := jnl.RecordTrade(ctx, s.TradeRecord()); err != nil {
						slog.Error("failed to journal trade", "trade_id", s.Execution.ExecID, "error", err)
					}
					cancel()
				}
				publisher.PublishSettlement(s)
			case <-done:
				return
			}
		}
	}()

	// --- Market data ---

	feed := marketdata.NewFeed(marketdata.FeedConfig{
		Symbols:  cfg.Trading.Symbols,
		Interval: time.Duration(cfg.Feed.IntervalSeconds) * time.Second,
		Scenario: marketdata.Scenario(cfg.Feed.Scenario),
	})

	candles := marketdata.NewAggregator(
		time.Duration(cfg.Candles.IntervalSeconds)*time.Second,
		cfg.Candles.History,
	)

	var archive *marketdata.Archive
	if cfg.Candles.ArchiveDir != "" {
		archive = marketdata.NewArchive(cfg.Candles.ArchiveDir)
		candles.OnFlush(func(completed []domain.Candlestick) {
			if err := archive.WriteCandles(completed); err != nil {
				slog.Error("failed to archive candles", "error", err)
			}
		})
		slog.Info("candle archive enabled", "dir", cfg.Candles.ArchiveDir)
	}
	candles.OnFlush(publisher.PublishCandles)

	feed.Subscribe(func(tick domain.MarketTick) {
		ex.MarkPrice(tick.Symbol, tick.Price)
		candles.Record(tick)
		publisher.PublishTick(tick)
	})

	// --- Strategy (optional) ---

	var strat *strategy.Momentum
	if cfg.Strategy.Enabled {
		strat = strategy.NewMomentum(strategy.MomentumConfig{
			Symbols:        cfg.Trading.Symbols,
			ShortWindow:    cfg.Strategy.ShortWindow,
			LongWindow:     cfg.Strategy.LongWindow,
			Threshold:      cfg.Strategy.Threshold,
			PositionSize:   cfg.Strategy.PositionSize,
			UpdateInterval: time.Duration(cfg.Strategy.IntervalSeconds) * time.Second,
		}, ex, feed)
	}

	// --- Start background loops ---

	feed.Start()
	candles.Start()
	if strat != nil {
		strat.Start()
	}

	// --- HTTP API ---

	handler.RegisterValidations()

	r := gin.Default()
	r.Use(middleware.Metrics(), middleware.Tracing())

	h := handler.NewHandler(ex, feed, candles, archive, jnl, strat)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: r,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.MetricsPort),
		Handler: metricsMux,
	}

	go func() {
		slog.Info("metrics server listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()

	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// --- Graceful shutdown ---

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	if strat != nil {
		strat.Stop()
	}
	feed.Stop()
	candles.Stop() // flushes building candles through OnFlush
	close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown error", "error", err)
	}

	slog.Info("trading service stopped")
}
