package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	apihttp "peerstream/internal/api/http"
	"peerstream/internal/app"
	"peerstream/internal/domain/ports"
	"peerstream/internal/metrics"
	"peerstream/internal/search"
	"peerstream/internal/search/providers/apibay"
	"peerstream/internal/services/transfer/anacrolix"
	"peerstream/internal/session"
	"peerstream/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "peerstream", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "peerstream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Int("maxSessions", cfg.MaxSessions),
		slog.Duration("idleTimeout", cfg.IdleTimeout),
		slog.Int64("memoryLimitBytes", cfg.MemoryLimitBytes),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := anacrolix.New(anacrolix.Config{
		MemoryLimitBytes: cfg.MemoryLimitBytes,
		DisableSeeding:   cfg.DisableSeeding,
	}, logger)
	if err != nil {
		logger.Error("transfer engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := session.NewRegistry(engine, anacrolix.ResourceKey, session.Config{
		MaxSessions:     cfg.MaxSessions,
		IdleTimeout:     cfg.IdleTimeout,
		CleanupInterval: cfg.CleanupInterval,
		InitialWindow:   cfg.InitialWindow,
		BufferAhead:     cfg.BufferAhead,
		PeerGracePeriod: cfg.PeerGracePeriod,
	}, logger)
	registry.Start()

	searchSvc := newSearchService(cfg, logger)

	handler := apihttp.NewServer(registry,
		apihttp.WithLogger(logger),
		apihttp.WithSearch(searchSvc),
		apihttp.WithAllowedOrigins(cfg.AllowedOrigins),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	go updateGatewayMetrics(rootCtx, engine, registry, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	registry.Close()
	if err := engine.Close(); err != nil {
		logger.Warn("engine close error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func newSearchService(cfg app.Config, logger *slog.Logger) *search.Service {
	providers := []ports.SearchProvider{
		apibay.New(apibay.Config{}),
	}

	var cache search.Cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, using in-memory search cache",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		} else {
			cache = search.NewRedisCache(client, cfg.SearchCacheTTL)
		}
	}
	if cache == nil {
		cache = search.NewMemoryCache(search.WithMemoryCacheTTL(cfg.SearchCacheTTL))
	}

	return search.NewService(providers, logger,
		search.WithTimeout(cfg.SearchTimeout),
		search.WithCache(cache),
	)
}

// updateGatewayMetrics refreshes Prometheus gauges from live sessions and
// pushes status snapshots to WebSocket clients.
func updateGatewayMetrics(ctx context.Context, engine *anacrolix.Engine, registry *session.Registry, handler *apihttp.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statuses := registry.Snapshot()
			metrics.ActiveSessions.Set(float64(len(statuses)))
			var dlTotal, ulTotal int64
			var peersTotal int
			for _, status := range statuses {
				dlTotal += status.DownloadRate
				ulTotal += status.UploadRate
				peersTotal += status.PeerCount
			}
			metrics.DownloadSpeedBytes.Set(float64(dlTotal))
			metrics.UploadSpeedBytes.Set(float64(ulTotal))
			metrics.PeersConnected.Set(float64(peersTotal))
			metrics.MemoryResidentBytes.Set(float64(engine.ResidentBytes()))
			handler.BroadcastStatuses(statuses)
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	if strings.ToLower(strings.TrimSpace(formatRaw)) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
