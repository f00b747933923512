package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rpcdispatch/internal/cache"
	"rpcdispatch/internal/config"
	"rpcdispatch/internal/dispatch"
	"rpcdispatch/internal/execution"
	"rpcdispatch/internal/methods"
	"rpcdispatch/internal/metrics"
	"rpcdispatch/internal/plugin"
	"rpcdispatch/internal/server"
	"rpcdispatch/internal/tracing"
	"rpcdispatch/internal/upstream"
)

var version = "dev"

func main() {
	// Parse flags
	configPath := flag.String("config", "config.json", "path to config file, empty to use environment only")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Basic logger for startup errors
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("config", *configPath).
		Str("host", cfg.Host).
		Int("rpcPort", cfg.RPCPort).
		Int("wsPort", cfg.WSPort).
		Int("upstreams", len(cfg.Upstreams)).
		Dur("dispatchTimeout", cfg.GetDispatchTimeoutDuration()).
		Msg("starting rpcdispatch")

	tracer, shutdownTracing, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	pool := upstream.NewPool(upstreamConfigs(cfg), logger)

	var rpcCache cache.Cache = cache.NewNoopCache()
	if cfg.Cache.Enabled {
		rpcCache, err = cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cache")
		}
	}

	registry, err := buildRegistry(cfg, pool, rpcCache, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build method registry")
	}

	m := metrics.New()
	factory := dispatch.NewFactory(execution.Deps{
		Registry:     registry,
		Tracer:       tracer,
		Observer:     m,
		MaxBatchSize: cfg.MaxBatchSize,
	})
	runner := dispatch.NewRunner(factory, dispatch.RunnerConfig{
		Timeout:  cfg.GetDispatchTimeoutDuration(),
		Tracer:   tracer,
		Observer: m,
		Logger:   logger,
	})

	srv := server.New(cfg, runner, m, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
	pool.Close()
	rpcCache.Close()
	tracing.Shutdown(shutdownTracing, logger)
}

func upstreamConfigs(cfg *config.Config) []upstream.Config {
	cfgs := make([]upstream.Config, 0, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		cfgs = append(cfgs, upstream.Config{
			Name:             u.Name,
			RPCURL:           u.RPCURL,
			Weight:           u.Weight,
			RequestTimeout:   cfg.GetUpstreamTimeoutDuration(),
			FailureThreshold: cfg.FailureLimit,
			Cooldown:         cfg.GetCooldownDuration(),
		})
	}
	return cfgs
}

// buildRegistry registers the built-in and plugin methods, forwards the rest
// upstream and puts the configured methods behind the cache.
func buildRegistry(cfg *config.Config, pool *upstream.Pool, rpcCache cache.Cache, logger zerolog.Logger) (*methods.Registry, error) {
	registry := methods.NewRegistry()

	err := methods.RegisterBuiltins(registry, methods.BuiltinConfig{
		ClientVersion: cfg.ClientVersion,
		ChainID:       cfg.ChainID,
		NetworkID:     cfg.NetworkID,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Plugins.Enabled {
		var caller plugin.Caller
		if pool.Len() > 0 {
			caller = pool
		}
		mgr := plugin.NewManager(caller, cfg.Plugins.GetTimeoutDuration(), logger)
		if err := mgr.LoadFromDirectory(cfg.Plugins.Directory); err != nil {
			return nil, fmt.Errorf("failed to load plugins: %w", err)
		}
		if err := mgr.Register(registry); err != nil {
			return nil, fmt.Errorf("failed to register plugins: %w", err)
		}
		logger.Info().
			Strs("methods", mgr.Methods()).
			Str("directory", cfg.Plugins.Directory).
			Msg("plugins enabled")
	} else {
		logger.Info().Msg("plugins disabled")
	}

	if pool.Len() > 0 {
		registry.SetFallback(pool.Fallback())
	} else {
		logger.Warn().Msg("no upstreams configured, unknown methods return method not found")
	}

	if cfg.Cache.Enabled {
		for _, method := range cfg.Cache.Methods {
			if _, ok := registry.Lookup(method); !ok {
				if pool.Len() == 0 {
					logger.Warn().Str("method", method).Msg("cannot cache method with no handler")
					continue
				}
				if err := registry.Register(method, pool.MethodHandler(method)); err != nil {
					return nil, err
				}
			}
			registry.Wrap(method, methods.Cached(method, rpcCache))
		}
		logger.Info().
			Int("size", cfg.Cache.Size).
			Int("ttl", cfg.Cache.TTL).
			Strs("methods", cfg.Cache.Methods).
			Msg("cache enabled")
	} else {
		logger.Info().Msg("cache disabled")
	}

	return registry, nil
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
