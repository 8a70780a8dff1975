package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/high-moctane/modguard"
	"github.com/high-moctane/modguard/audit"
	modguardprom "github.com/high-moctane/modguard/prometheus"
)

func main() {
	if err := run(); err != nil {
		slog.Error("modguard terminated", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := modguard.LoadServerConfig()
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	logger := newLogger(cfg.LogFormat, level)
	slog.SetDefault(logger)

	store := modguard.NewConfigStore(cfg.ConfigFile, &modguard.ConfigStoreOption{
		Level:  level,
		Logger: logger,
	})
	if err := store.Load(); err != nil {
		return err
	}

	cacheOpt := &modguard.MetadataCacheOption{Logger: logger}
	if cfg.PebblePath != "" {
		ds, err := modguard.NewPebbleDescriptorStore(cfg.PebblePath)
		if err != nil {
			return err
		}
		defer ds.Close()
		cacheOpt.Store = ds
	}
	index, err := modguard.NewBleveModIndex(&modguard.BleveModIndexOptions{Path: cfg.BlevePath})
	if err != nil {
		return err
	}
	defer index.Close()
	cacheOpt.Index = index

	cache := modguard.NewMetadataCache(cacheOpt)
	n, err := cache.Warm(ctx)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "mod descriptors loaded", "count", n)

	var wg sync.WaitGroup
	defer wg.Wait()

	var observers []modguard.Observer
	reg := prometheus.NewRegistry()
	if cfg.PrometheusEnabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		observers = append(observers, modguardprom.NewObserver(reg))
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub := audit.NewPublisher(audit.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), &audit.Option{Logger: logger})
		observers = append(observers, pub)
		wg.Go(func() {
			if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit publisher stopped", "error", err)
			}
		})
	}

	bridge := modguard.NewBridge(&modguard.BridgeOption{Logger: logger})
	gate := modguard.NewGate(store, &modguard.GateOption{
		Cache:       cache,
		Transport:   bridge,
		Broadcaster: bridge,
		Provider:    bridge,
		Observer:    modguard.Observers(observers...),
		Logger:      logger,
	})
	bridge.Handler = gate

	adminOpt := &modguard.AdminOption{
		Gate:     gate,
		Bridge:   bridge,
		Reloader: store,
		Logger:   logger,
	}
	if cfg.PrometheusEnabled {
		modguardprom.RegisterGauges(reg, gate)
		adminOpt.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           modguard.NewAdminRouter(adminOpt),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Go(func() {
		modguard.NewConfigWatcher(store, cfg.ConfigPollInterval, logger).Watch(ctx)
	})
	wg.Go(func() {
		gate.Run(ctx, cfg.TickInterval)
	})
	wg.Go(func() {
		reloadOnHangup(ctx, store, logger)
	})
	wg.Go(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down http server", "error", err)
		}
	})

	logger.Info("modguard started", "addr", cfg.Addr, "config", cfg.ConfigFile)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		return err
	}
	return nil
}

func newLogger(format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(modguard.WithSlogModguardHandler(h))
}

func reloadOnHangup(ctx context.Context, store *modguard.ConfigStore, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := store.Reload(); err != nil {
				logger.Error("config reload failed", "error", err)
			}
		}
	}
}
